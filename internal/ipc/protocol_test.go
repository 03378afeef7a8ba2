package ipc

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodeRequest_WireFormat(t *testing.T) {
	path := "/work/alpha"
	tests := []struct {
		name string
		req  Request
		want string
	}{
		{"unit kind omits data", Ping{}, `{"type":"Ping"}`},
		{"project entered", ProjectEntered{Path: "/work/alpha", Context: "terminal"},
			`{"type":"ProjectEntered","data":{"path":"/work/alpha","context":"terminal"}}`},
		{"start without path", StartSession{Context: "manual"},
			`{"type":"StartSession","data":{"context":"manual"}}`},
		{"start with path", StartSession{ProjectPath: &path, Context: "ide"},
			`{"type":"StartSession","data":{"project_path":"/work/alpha","context":"ide"}}`},
		{"switch project", SwitchProject{ProjectID: 7}, `{"type":"SwitchProject","data":{"project_id":7}}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := EncodeRequest(tt.req)
			require.NoError(t, err)
			assert.JSONEq(t, tt.want, string(got))
		})
	}
}

func TestDecodeRequest(t *testing.T) {
	tests := []struct {
		name    string
		payload string
		want    Request
		wantErr error
	}{
		{"unit kind", `{"type":"StopSession"}`, StopSession{}, nil},
		{"unit kind with null data", `{"type":"Shutdown","data":null}`, Shutdown{}, nil},
		{"fields", `{"type":"ProjectLeft","data":{"path":"/a"}}`, ProjectLeft{Path: "/a"}, nil},
		{"unknown fields ignored", `{"type":"GetProject","data":{"project_id":3,"extra":true}}`, GetProject{ProjectID: 3}, nil},
		{"unknown type", `{"type":"Teleport"}`, nil, ErrUnknownMessage},
		{"response kind is not a request", `{"type":"Pong"}`, nil, ErrUnknownMessage},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := DecodeRequest([]byte(tt.payload))
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestDecodeRequest_Malformed(t *testing.T) {
	for _, payload := range []string{`not json`, `{"type":"ProjectEntered","data":{"path":12}}`, `[]`} {
		_, err := DecodeRequest([]byte(payload))
		var pe *ProtocolError
		assert.ErrorAs(t, err, &pe, payload)
	}
}

func TestResponse_StatusCarriesSession(t *testing.T) {
	start := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	status := Status{
		DaemonRunning: true,
		Uptime:        90,
		ActiveSession: &SessionInfo{ID: 1, ProjectName: "alpha", ProjectPath: "/a", StartTime: start, Context: "terminal", Duration: 60},
	}

	var buf bytes.Buffer
	require.NoError(t, WriteResponse(&buf, status))
	got, err := ReadResponse(&buf)
	require.NoError(t, err)

	s, ok := got.(Status)
	require.True(t, ok, "got %T", got)
	require.NotNil(t, s.ActiveSession)
	assert.Equal(t, "alpha", s.ActiveSession.ProjectName)
	assert.True(t, s.ActiveSession.StartTime.Equal(start))
	assert.Equal(t, int64(90), s.Uptime)
}

func TestResponse_ErrorKind(t *testing.T) {
	payload, err := EncodeResponse(Errorf("no %s", "session"))
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"Error","data":{"message":"no session"}}`, string(payload))

	idle, err := EncodeResponse(ActiveSessionResponse{})
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"ActiveSession","data":{"session":null}}`, string(idle))
}

func TestReadRequest_StreamOfFrames(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteRequest(&buf, Ping{}))
	require.NoError(t, WriteRequest(&buf, ProjectEntered{Path: "/a", Context: "ide"}))

	first, err := ReadRequest(&buf)
	require.NoError(t, err)
	assert.Equal(t, Ping{}, first)
	second, err := ReadRequest(&buf)
	require.NoError(t, err)
	assert.Equal(t, ProjectEntered{Path: "/a", Context: "ide"}, second)
}
