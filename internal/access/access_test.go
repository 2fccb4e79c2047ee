package access

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestCanAccess_AllPairs(t *testing.T) {
	for _, clearance := range Levels {
		for _, classification := range Levels {
			want := int(clearance) >= int(classification)
			require.Equal(t, want, CanAccess(clearance, classification), "%s vs %s", clearance, classification)
		}
	}
}

func TestCanAccess_UnknownDenies(t *testing.T) {
	require.False(t, CanAccess(LevelUnknown, LevelPublic))
	require.False(t, CanAccess(LevelSecret, LevelUnknown))
	require.False(t, CanAccess(Level(99), LevelPublic))
}

func TestCanUpload_OnlySecretClearance(t *testing.T) {
	for _, role := range Roles {
		for _, level := range Levels {
			require.Equal(t, level == LevelSecret, CanUpload(role, level), "%s/%s", role, level)
		}
	}
}

func TestCanAdminister(t *testing.T) {
	for _, role := range Roles {
		require.Equal(t, role == RoleAdmin, CanAdminister(role))
	}
	require.False(t, CanAdminister(RoleUnknown))
}

func TestAccessibleLevels(t *testing.T) {
	require.Equal(t, []Level{LevelPublic}, AccessibleLevels(LevelPublic))
	require.Equal(t, []Level{LevelPublic, LevelInternal, LevelConfidential}, AccessibleLevels(LevelConfidential))
	require.Equal(t, Levels, AccessibleLevels(LevelSecret))
	require.Empty(t, AccessibleLevels(LevelUnknown))
}

func TestParseLevelAndRole(t *testing.T) {
	level, err := ParseLevel(" confidential ")
	require.NoError(t, err)
	require.Equal(t, LevelConfidential, level)
	_, err = ParseLevel("TOP_SECRET")
	require.Error(t, err)

	role, err := ParseRole("analyst")
	require.NoError(t, err)
	require.Equal(t, RoleAnalyst, role)
	_, err = ParseRole("root")
	require.Error(t, err)
	require.Equal(t, "ADMIN", RoleAdmin.String())
}

func TestLevelJSON(t *testing.T) {
	data, err := json.Marshal(struct {
		Level Level `json:"level"`
		Role  Role  `json:"role"`
	}{LevelInternal, RoleStaff})
	require.NoError(t, err)
	require.JSONEq(t, `{"level":"INTERNAL","role":"STAFF"}`, string(data))

	var out struct {
		Level Level `json:"level"`
	}
	require.NoError(t, json.Unmarshal([]byte(`{"level":"secret"}`), &out))
	require.Equal(t, LevelSecret, out.Level)
	require.Error(t, json.Unmarshal([]byte(`{"level":"nope"}`), &out))
}
