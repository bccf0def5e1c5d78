package models

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPrepareNewClan(t *testing.T) {
	tests := []struct {
		name        string
		clanName    string
		displayName string
		description string
		wantErr     string
	}{
		{"valid", "my_clan1", "", "about", ""},
		{"valid with display name", "gophers", "Gophers United", "about", ""},
		{"trimmed", "  go_dev  ", "", "  about  ", ""},
		{"missing name", "", "", "about", MsgClanRequired},
		{"missing description", "golang", "", "   ", MsgClanRequired},
		{"uppercase and space", "My Clan", "", "about", MsgClanNameFormat},
		{"hyphen", "my-clan", "", "about", MsgClanNameFormat},
		{"too short", "ab", "", "about", MsgClanNameLength},
		{"too long", strings.Repeat("a", 51), "", "about", MsgClanNameLength},
		{"description too long", "golang", "", strings.Repeat("d", 501), MsgClanDescription},
		{"display name too long", "golang", strings.Repeat("x", 101), "about", MsgClanDisplayName},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clan, err := PrepareNewClan(tt.clanName, tt.displayName, tt.description)
			if tt.wantErr == "" {
				require.NoError(t, err)
				assert.Equal(t, strings.TrimSpace(tt.clanName), clan.Name)
				assert.NotEmpty(t, clan.DisplayName)
				return
			}
			var verr *ValidationError
			require.ErrorAs(t, err, &verr)
			assert.Equal(t, tt.wantErr, verr.Message)
		})
	}
}

func TestPrepareNewClanDefaultsDisplayName(t *testing.T) {
	clan, err := PrepareNewClan("golang", " ", "Go talk")
	require.NoError(t, err)
	assert.Equal(t, "golang", clan.DisplayName)
	assert.Equal(t, "Go talk", clan.Description)
}

func TestPrepareNewPost(t *testing.T) {
	post, err := PrepareNewPost(" Title ", "body", "golang")
	require.NoError(t, err)
	assert.Equal(t, NewPost{Title: "Title", Content: "body", Clan: "golang"}, post)

	for _, fields := range [][3]string{{"", "b", "c"}, {"t", "  ", "c"}, {"t", "b", ""}} {
		_, err := PrepareNewPost(fields[0], fields[1], fields[2])
		var verr *ValidationError
		require.ErrorAs(t, err, &verr)
		assert.Equal(t, MsgPostRequired, verr.Message)
	}
}

func TestValidateClanName(t *testing.T) {
	assert.NoError(t, ValidateClanName("golang"))
	assert.Error(t, ValidateClanName("Go Lang"))
	assert.Error(t, ValidateClanName("go"))
	assert.Error(t, ValidateClanName(""))
}
