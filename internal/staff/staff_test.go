package staff

import (
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/iliyamo/convention-desk/internal/logging"
	"github.com/iliyamo/convention-desk/internal/model"
	"github.com/iliyamo/convention-desk/internal/utils"
)

func hash(t *testing.T, pin string) string {
	t.Helper()
	h, err := utils.HashPIN(pin, bcrypt.MinCost)
	require.NoError(t, err)
	return h
}

func writeDirectory(t *testing.T, path, body string) {
	t.Helper()
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
}

func TestLoginAndReload(t *testing.T) {
	path := filepath.Join(t.TempDir(), "staff.yaml")
	writeDirectory(t, path, fmt.Sprintf(`staff:
  - id: st-1
    name: Grace
    role: scanner
    pin_hash: %q
  - id: st-2
    name: Tunde
    role: ADMIN
    pin_hash: %q
    active: false
`, hash(t, "1111"), hash(t, "2222")))

	d, err := Open(path, logging.Discard())
	require.NoError(t, err)
	require.Equal(t, 2, d.Len())

	s, err := d.Login("1111")
	require.NoError(t, err)
	require.Equal(t, "st-1", s.ID)
	require.Equal(t, model.RoleScanner, s.Role)

	_, err = d.Login("2222")
	require.ErrorIs(t, err, ErrInvalidPIN)
	_, err = d.Get("st-2")
	require.ErrorIs(t, err, ErrNotFound)
	_, err = d.Login("")
	require.ErrorIs(t, err, ErrInvalidPIN)

	writeDirectory(t, path, fmt.Sprintf("staff:\n  - id: st-3\n    role: ADMIN\n    pin_hash: %q\n", hash(t, "3333")))
	require.NoError(t, d.Reload())
	s, err = d.Login("3333")
	require.NoError(t, err)
	require.Equal(t, "st-3", s.Name)
	_, err = d.Login("1111")
	require.ErrorIs(t, err, ErrInvalidPIN)

	// a broken file keeps the previous entries
	writeDirectory(t, path, "staff: [")
	require.Error(t, d.Reload())
	_, err = d.Get("st-3")
	require.NoError(t, err)
}

func TestParseRejectsBadEntries(t *testing.T) {
	cases := map[string]string{
		"missing id":   "staff:\n  - role: ADMIN\n    pin_hash: $2a$x\n",
		"duplicate id": "staff:\n  - {id: a, role: ADMIN, pin_hash: $2a$x}\n  - {id: a, role: ADMIN, pin_hash: $2a$y}\n",
		"bad role":     "staff:\n  - {id: a, role: JANITOR, pin_hash: $2a$x}\n",
		"plain pin":    "staff:\n  - {id: a, role: ADMIN, pin_hash: '1234'}\n",
		"unknown key":  "staff:\n  - {id: a, role: ADMIN, pin_hash: $2a$x, pin: '1234'}\n",
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := Parse([]byte(body))
			require.Error(t, err)
		})
	}
}
