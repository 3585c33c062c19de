package search

import (
	"encoding/json"
	"os"
	"path/filepath"

	"creditscout/internal/domain"
)

// SaveArticles writes search results to a JSON file, creating parent
// directories as needed.
func SaveArticles(path string, articles []domain.Article) error {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	data, err := json.MarshalIndent(articles, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

// LoadArticles reads previously saved search results. A missing file is not
// an error and yields an empty slice.
func LoadArticles(path string) ([]domain.Article, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	var articles []domain.Article
	if err := json.Unmarshal(data, &articles); err != nil {
		return nil, err
	}
	return articles, nil
}
