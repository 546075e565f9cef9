package main

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/pario-ai/benchrun/pkg/models"
)

// loadQuestions reads a YAML or JSON list of {task_id, question, file_name}.
func loadQuestions(path string) ([]models.Question, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read questions: %w", err)
	}

	var qs []models.Question
	if err := yaml.Unmarshal(data, &qs); err != nil {
		return nil, fmt.Errorf("parse questions: %w", err)
	}
	if len(qs) == 0 {
		return nil, fmt.Errorf("%s: no questions", path)
	}

	seen := make(map[string]bool, len(qs))
	for i, q := range qs {
		if q.ID == "" {
			return nil, fmt.Errorf("%s: question %d has no task_id", path, i+1)
		}
		if seen[q.ID] {
			return nil, fmt.Errorf("%s: duplicate task_id %q", path, q.ID)
		}
		seen[q.ID] = true
	}
	return qs, nil
}
