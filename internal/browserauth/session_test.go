package browserauth

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoginStateJSON(t *testing.T) {
	raw, err := json.Marshal(LoginState{Nonce: "n", ReturnPath: "/files"})
	require.NoError(t, err)
	assert.JSONEq(t, `{"nonce":"n","return_path":"/files"}`, string(raw))
}

func TestSessionViewJSON(t *testing.T) {
	raw, err := json.Marshal(SessionView{State: "authenticated", Name: "Ada", Authenticated: true})
	require.NoError(t, err)
	assert.JSONEq(t, `{"state":"authenticated","name":"Ada","authenticated":true}`, string(raw))

	raw, err = json.Marshal(SessionView{State: "loggedOut"})
	require.NoError(t, err)
	assert.JSONEq(t, `{"state":"loggedOut","authenticated":false}`, string(raw))
}
