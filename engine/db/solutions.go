package db

import (
	"errors"
	"time"

	"gorm.io/gorm"
)

// SolutionSchema caches the most recent detected submission for the popup.
type SolutionSchema struct {
	ID         uint
	TabID      string
	Code       string
	Language   string
	DetectedAt time.Time
	CreatedAt  time.Time
}

func CreateSolution(solution SolutionSchema) (SolutionSchema, error) {
	result := db.Table("solution_schemas").Create(&solution)
	if result.Error != nil {
		return SolutionSchema{}, result.Error
	}
	return solution, nil
}

// GetLastSolution returns false when nothing has been detected yet.
func GetLastSolution() (SolutionSchema, bool, error) {
	var solution SolutionSchema
	result := db.Table("solution_schemas").Order("detected_at desc, id desc").First(&solution)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return SolutionSchema{}, false, nil
		}
		return SolutionSchema{}, false, result.Error
	}
	return solution, true, nil
}

// PruneSolutions keeps only the newest keep rows.
func PruneSolutions(keep int) error {
	var ids []uint
	if err := db.Table("solution_schemas").Order("detected_at desc, id desc").Limit(keep).Pluck("id", &ids).Error; err != nil {
		return err
	}
	if len(ids) == 0 {
		return nil
	}
	return db.Table("solution_schemas").Where("id NOT IN ?", ids).Delete(&SolutionSchema{}).Error
}

func CountSolutions() (int64, error) {
	var count int64
	err := db.Table("solution_schemas").Count(&count).Error
	return count, err
}
