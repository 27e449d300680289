package db

import (
	_ "embed"
	"fmt"

	"gopkg.in/yaml.v3"
	"gorm.io/gorm"

	"caex-inspector-backend/internal/model"
)

//go:embed seed.yaml
var seedYAML []byte

type seedQuestion struct {
	Text  string               `yaml:"text"`
	Model model.EquipmentModel `yaml:"model"`
}

type seedCategory struct {
	Name      string               `yaml:"name"`
	Model     model.EquipmentModel `yaml:"model"`
	Questions []seedQuestion       `yaml:"questions"`
}

type seedFile struct {
	Categories []seedCategory `yaml:"categories"`
}

// Seed inserts the reference checklist when no category exists yet and
// returns the number of questions inserted.
func Seed(db *gorm.DB) (int, error) {
	var count int64
	if err := db.Model(&model.Category{}).Count(&count).Error; err != nil {
		return 0, fmt.Errorf("failed to count categories: %w", err)
	}
	if count > 0 {
		return 0, nil
	}

	var seed seedFile
	if err := yaml.Unmarshal(seedYAML, &seed); err != nil {
		return 0, fmt.Errorf("failed to parse seed data: %w", err)
	}

	inserted := 0
	err := db.Transaction(func(tx *gorm.DB) error {
		for i, sc := range seed.Categories {
			category := model.Category{Name: sc.Name, Order: i + 1, Model: orAll(sc.Model)}
			if err := tx.Create(&category).Error; err != nil {
				return fmt.Errorf("failed to seed category %q: %w", sc.Name, err)
			}

			questions := make([]model.Question, 0, len(sc.Questions))
			for j, sq := range sc.Questions {
				// A question never applies more widely than its category.
				questionModel := orAll(sq.Model)
				if questionModel == model.ModelAll {
					questionModel = category.Model
				}
				questions = append(questions, model.Question{
					CategoryID: category.ID,
					Text:       sq.Text,
					Order:      j + 1,
					Model:      questionModel,
				})
			}
			if len(questions) == 0 {
				continue
			}
			if err := tx.Omit("Category").Create(&questions).Error; err != nil {
				return fmt.Errorf("failed to seed questions of %q: %w", sc.Name, err)
			}
			inserted += len(questions)
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return inserted, nil
}

func orAll(m model.EquipmentModel) model.EquipmentModel {
	if m == "" {
		return model.ModelAll
	}
	return m
}
