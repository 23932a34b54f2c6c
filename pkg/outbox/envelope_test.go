package outbox

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/comanda-backend/pkg/enums"
	"github.com/angelmondragon/comanda-backend/pkg/types"
)

func TestDecodeEnvelope(t *testing.T) {
	tenantID := uuid.New()
	raw := []byte(`{"version":1,"event_id":"e-1","tenant_id":"` + tenantID.String() + `","occurred_at":"2026-03-14T18:30:00Z","data":{"order_id":"x"}}`)

	env, err := DecodeEnvelope(raw)
	require.NoError(t, err)
	assert.Equal(t, "e-1", env.EventID)
	assert.Equal(t, tenantID, env.TenantID)
	assert.JSONEq(t, `{"order_id":"x"}`, string(env.Data))
}

func TestDecodeEnvelopeRejects(t *testing.T) {
	cases := map[string]string{
		"malformed":      `{"version":`,
		"future version": `{"version":2,"event_id":"e","data":{}}`,
		"missing data":   `{"version":1,"event_id":"e"}`,
		"null data":      `{"version":1,"event_id":"e","data":null}`,
	}
	for name, raw := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := DecodeEnvelope([]byte(raw))
			assert.Error(t, err)
		})
	}
}

func TestActorFromSkipsSystem(t *testing.T) {
	assert.Nil(t, ActorFrom(types.SystemActor()))

	userID := uuid.New()
	ref := ActorFrom(types.Actor{UserID: userID, Role: enums.MemberRoleManager})
	require.NotNil(t, ref)
	assert.Equal(t, userID, ref.UserID)
	assert.Equal(t, string(enums.MemberRoleManager), ref.Role)
}
