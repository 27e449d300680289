package db

import (
	"bytes"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"caex-inspector-backend/config"
	"caex-inspector-backend/internal/model"
)

func TestSeed(t *testing.T) {
	testDB, err := gorm.Open(sqlite.Open("file::memory:"), &gorm.Config{})
	require.NoError(t, err)
	sqlDB, err := testDB.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	defer sqlDB.Close()
	require.NoError(t, Migrate(testDB))

	inserted, err := Seed(testDB)
	require.NoError(t, err)
	assert.Greater(t, inserted, 0)

	t.Run("is idempotent", func(t *testing.T) {
		again, err := Seed(testDB)
		require.NoError(t, err)
		assert.Equal(t, 0, again)
	})

	t.Run("questions inherit a model-specific category filter", func(t *testing.T) {
		var electrical model.Category
		require.NoError(t, testDB.Where("name = ?", "Sistema Eléctrico").First(&electrical).Error)
		assert.Equal(t, model.Model798AC, electrical.Model)

		var wrong int64
		testDB.Model(&model.Question{}).
			Where("category_id = ? AND model <> ?", electrical.ID, model.Model798AC).
			Count(&wrong)
		assert.Equal(t, int64(0), wrong)
	})

	t.Run("categories keep file order", func(t *testing.T) {
		var first model.Category
		require.NoError(t, testDB.Order("display_order").First(&first).Error)
		assert.Equal(t, "Condiciones Generales", first.Name)
		assert.Equal(t, 1, first.Order)
	})

	t.Run("798AC sees more questions than 797F", func(t *testing.T) {
		var f, ac int64
		testDB.Model(&model.Question{}).Where("model IN ?", []model.EquipmentModel{model.ModelAll, model.Model797F}).Count(&f)
		testDB.Model(&model.Question{}).Where("model IN ?", []model.EquipmentModel{model.ModelAll, model.Model798AC}).Count(&ac)
		assert.Greater(t, ac, f)
		assert.Equal(t, int64(inserted), ac)
	})
}

func TestInitLogging(t *testing.T) {
	var buf bytes.Buffer
	log := logrus.New()
	log.SetOutput(&buf)

	gdb, err := Init(&config.DatabaseConfig{DSN: "file::memory:", MaxOpenConns: 1}, log)
	require.NoError(t, err)
	sqlDB, err := gdb.DB()
	require.NoError(t, err)
	defer sqlDB.Close()

	buf.Reset()
	err = gdb.First(&model.Equipment{}, 999).Error
	require.ErrorIs(t, err, gorm.ErrRecordNotFound)
	assert.NotContains(t, buf.String(), "record not found")

	require.Error(t, gdb.Exec("SELECT * FROM missing_table").Error)
	assert.Contains(t, buf.String(), "missing_table")
}
