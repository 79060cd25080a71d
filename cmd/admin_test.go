package cmd

import (
	"context"
	"path/filepath"
	"testing"

	"auditsync/storage"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestValidateSourceField(t *testing.T) {
	assert.NoError(t, validateSourceField("text"))
	assert.NoError(t, validateSourceField("SQLText"))
	assert.NoError(t, validateSourceField("bindVariables"))
	assert.Error(t, validateSourceField("no_such_field"))
}

func TestNewAdminCmd_Structure(t *testing.T) {
	root := NewAdminCmd()

	names := make(map[string][]string)
	for _, sub := range root.Commands() {
		for _, leaf := range sub.Commands() {
			names[sub.Name()] = append(names[sub.Name()], leaf.Name())
		}
	}
	assert.ElementsMatch(t, []string{"list", "add"}, names["targets"])
	assert.ElementsMatch(t, []string{"list", "add"}, names["rules"])
}

func TestAdminCmd_TargetAndRuleAuthoring(t *testing.T) {
	viper.Reset()
	t.Cleanup(viper.Reset)
	dbPath := filepath.Join(t.TempDir(), "admin.db")
	t.Setenv("AUDITSYNC_SQLITE_PATH", dbPath)

	root := NewAdminCmd()
	root.SetArgs([]string{"targets", "add", "DB1", "--description", "primary", "--no-color"})
	require.NoError(t, root.Execute())

	root = NewAdminCmd()
	root.SetArgs([]string{"rules", "add", "DB1", "msisdn",
		"--source", "text", "--pattern", `msisdn = '(\d+)'`, "--order", "1", "--no-color"})
	require.NoError(t, root.Execute())

	db, err := storage.NewSQLite(dbPath, zap.NewNop().Sugar())
	require.NoError(t, err)
	defer db.Close()

	ctx := context.Background()
	target, err := storage.NewSQLiteTargetStorage(db, db.Logger).GetByName(ctx, "DB1")
	require.NoError(t, err)
	assert.Equal(t, "primary", target.Description)

	rules, err := storage.NewSQLiteRuleStorage(db, db.Logger).GetActiveRulesByTarget(ctx, "DB1")
	require.NoError(t, err)
	require.Len(t, rules, 1)
	assert.Equal(t, "msisdn", rules[0].RuleName)
	assert.True(t, rules[0].IsActive)
}

func TestAdminCmd_RejectsBadRule(t *testing.T) {
	viper.Reset()
	t.Cleanup(viper.Reset)
	t.Setenv("AUDITSYNC_SQLITE_PATH", filepath.Join(t.TempDir(), "admin.db"))

	root := NewAdminCmd()
	root.SetArgs([]string{"rules", "add", "DB1", "bad",
		"--source", "nope", "--pattern", `\d+`, "--no-color"})
	assert.Error(t, root.Execute())

	root = NewAdminCmd()
	root.SetArgs([]string{"rules", "add", "DB1", "bad",
		"--source", "text", "--pattern", "(unclosed", "--no-color"})
	assert.Error(t, root.Execute())
}
