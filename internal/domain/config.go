package domain

import (
	"errors"
	"fmt"
	"strings"
)

const (
	MaxBoardRows       = 10
	MaxBoardCategories = 12
)

// GameConfig is the board a match is played on: a category set and the rows per category.
type GameConfig struct {
	Categories []string `json:"categories"`
	RowCount   int      `json:"row_count"`
}

// Validate rejects empty, blank, duplicated or oversized boards.
func (c GameConfig) Validate() error {
	if len(c.Categories) == 0 {
		return errors.New("at least one category is required")
	}
	if len(c.Categories) > MaxBoardCategories {
		return fmt.Errorf("at most %d categories are allowed", MaxBoardCategories)
	}
	seen := make(map[string]struct{}, len(c.Categories))
	for _, cat := range c.Categories {
		name := strings.TrimSpace(cat)
		if name == "" {
			return errors.New("category names must not be blank")
		}
		key := strings.ToLower(name)
		if _, dup := seen[key]; dup {
			return fmt.Errorf("category %q is listed twice", name)
		}
		seen[key] = struct{}{}
	}
	if c.RowCount < 1 || c.RowCount > MaxBoardRows {
		return fmt.Errorf("row_count must be between 1 and %d", MaxBoardRows)
	}
	return nil
}

// Normalized returns c with surrounding blanks trimmed from category names, the
// form stored and matched against the question bank.
func (c GameConfig) Normalized() GameConfig {
	cats := make([]string, len(c.Categories))
	for i, cat := range c.Categories {
		cats[i] = strings.TrimSpace(cat)
	}
	return GameConfig{Categories: cats, RowCount: c.RowCount}
}

// BoardSize is the number of questions a full board holds.
func (c GameConfig) BoardSize() int { return len(c.Categories) * c.RowCount }
