package db

import (
	"time"

	"gorm.io/gorm/clause"
)

type AlarmSchema struct {
	Name        string `gorm:"primaryKey"`
	ScheduledAt time.Time
	Period      int64 // nanoseconds, zero for one-shot
}

func SaveAlarm(alarm AlarmSchema) error {
	result := db.Table("alarm_schemas").Clauses(clause.OnConflict{UpdateAll: true}).Create(&alarm)
	return result.Error
}

func DeleteAlarm(name string) (bool, error) {
	result := db.Table("alarm_schemas").Where("name = ?", name).Delete(&AlarmSchema{})
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

func GetAlarms() ([]AlarmSchema, error) {
	var alarms []AlarmSchema
	result := db.Table("alarm_schemas").Order("scheduled_at asc").Find(&alarms)
	if result.Error != nil {
		return nil, result.Error
	}
	return alarms, nil
}
