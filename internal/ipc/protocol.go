// Package ipc defines the messages exchanged between clients and the daemon
// over its Unix socket, and a client for sending them.
//
// Every message is one frame: a 4-byte big-endian length followed by a JSON
// envelope {"type": "<Kind>", "data": {...}}. Unit kinds omit data.
package ipc

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"time"
)

// ErrUnknownMessage is returned when an envelope names no known kind
var ErrUnknownMessage = errors.New("unknown message type")

// ProtocolError is a framing or decoding failure. The connection that
// produced it cannot be trusted for further messages.
type ProtocolError struct {
	Op  string
	Err error
}

func (e *ProtocolError) Error() string {
	return fmt.Sprintf("protocol %s: %v", e.Op, e.Err)
}

func (e *ProtocolError) Unwrap() error {
	return e.Err
}

// Request is a message sent to the daemon
type Request interface {
	Kind() string
	isRequest()
}

// Response is a message sent back by the daemon
type Response interface {
	Kind() string
	isResponse()
}

type (
	// Ping checks the daemon is alive
	Ping struct{}
	// GetStatus asks for daemon status and the active session
	GetStatus struct{}
	// ProjectEntered reports a shell or editor entering a directory
	ProjectEntered struct {
		Path    string `json:"path"`
		Context string `json:"context"`
	}
	// ProjectLeft reports leaving a directory
	ProjectLeft struct {
		Path string `json:"path"`
	}
	// StartSession explicitly starts tracking a project
	StartSession struct {
		ProjectPath *string `json:"project_path,omitempty"`
		Context     string  `json:"context"`
	}
	StopSession   struct{}
	PauseSession  struct{}
	ResumeSession struct{}
	// GetActiveSession asks for the session being tracked, if any
	GetActiveSession struct{}
	// Shutdown stops the session and then the daemon
	Shutdown struct{}
	// ActivityHeartbeat refreshes the idle timer without changing project
	ActivityHeartbeat struct{}
	// SwitchProject switches tracking to an existing project id
	SwitchProject struct {
		ProjectID int64 `json:"project_id"`
	}
	// GetSessionMetrics asks for duration accounting of the active session
	GetSessionMetrics struct{}
	// GetProject looks up one project by id
	GetProject struct {
		ProjectID int64 `json:"project_id"`
	}
)

func (Ping) Kind() string              { return "Ping" }
func (GetStatus) Kind() string         { return "GetStatus" }
func (ProjectEntered) Kind() string    { return "ProjectEntered" }
func (ProjectLeft) Kind() string       { return "ProjectLeft" }
func (StartSession) Kind() string      { return "StartSession" }
func (StopSession) Kind() string       { return "StopSession" }
func (PauseSession) Kind() string      { return "PauseSession" }
func (ResumeSession) Kind() string     { return "ResumeSession" }
func (GetActiveSession) Kind() string  { return "GetActiveSession" }
func (Shutdown) Kind() string          { return "Shutdown" }
func (ActivityHeartbeat) Kind() string { return "ActivityHeartbeat" }
func (SwitchProject) Kind() string     { return "SwitchProject" }
func (GetSessionMetrics) Kind() string { return "GetSessionMetrics" }
func (GetProject) Kind() string        { return "GetProject" }

func (Ping) isRequest()              {}
func (GetStatus) isRequest()         {}
func (ProjectEntered) isRequest()    {}
func (ProjectLeft) isRequest()       {}
func (StartSession) isRequest()      {}
func (StopSession) isRequest()       {}
func (PauseSession) isRequest()      {}
func (ResumeSession) isRequest()     {}
func (GetActiveSession) isRequest()  {}
func (Shutdown) isRequest()          {}
func (ActivityHeartbeat) isRequest() {}
func (SwitchProject) isRequest()     {}
func (GetSessionMetrics) isRequest() {}
func (GetProject) isRequest()        {}

// SessionInfo describes the tracked session. Duration is in seconds and
// excludes paused time.
type SessionInfo struct {
	ID          int64     `json:"id"`
	ProjectName string    `json:"project_name"`
	ProjectPath string    `json:"project_path"`
	StartTime   time.Time `json:"start_time"`
	Context     string    `json:"context"`
	Duration    int64     `json:"duration"`
}

// ProjectInfo is the wire form of a project
type ProjectInfo struct {
	ID          int64     `json:"id"`
	Name        string    `json:"name"`
	Path        string    `json:"path"`
	GitHash     *string   `json:"git_hash,omitempty"`
	Description *string   `json:"description,omitempty"`
	Archived    bool      `json:"is_archived"`
	CreatedAt   time.Time `json:"created_at"`
}

type (
	Pong struct{}
	Ok   struct{}
	// ErrorResponse carries an application error; the connection stays usable
	ErrorResponse struct {
		Message string `json:"message"`
	}
	// Status reports daemon uptime in seconds and the active session
	Status struct {
		DaemonRunning bool         `json:"daemon_running"`
		ActiveSession *SessionInfo `json:"active_session,omitempty"`
		Uptime        int64        `json:"uptime"`
	}
	// ActiveSessionResponse answers GetActiveSession when nothing is tracked
	ActiveSessionResponse struct {
		Session *SessionInfo `json:"session"`
	}
	// SessionMetrics reports accounting for the active session in seconds
	SessionMetrics struct {
		SessionID     int64     `json:"session_id"`
		ActiveSeconds int64     `json:"active_seconds"`
		TotalSeconds  int64     `json:"total_seconds"`
		PausedSeconds int64     `json:"paused_seconds"`
		Paused        bool      `json:"paused"`
		LastActivity  time.Time `json:"last_activity"`
	}
	// ProjectResponse answers GetProject
	ProjectResponse struct {
		Project *ProjectInfo `json:"project"`
	}
)

func (Pong) Kind() string                  { return "Pong" }
func (Ok) Kind() string                    { return "Ok" }
func (ErrorResponse) Kind() string         { return "Error" }
func (Status) Kind() string                { return "Status" }
func (SessionInfo) Kind() string           { return "SessionInfo" }
func (ActiveSessionResponse) Kind() string { return "ActiveSession" }
func (SessionMetrics) Kind() string        { return "SessionMetrics" }
func (ProjectResponse) Kind() string       { return "Project" }

func (Pong) isResponse()                  {}
func (Ok) isResponse()                    {}
func (ErrorResponse) isResponse()         {}
func (Status) isResponse()                {}
func (SessionInfo) isResponse()           {}
func (ActiveSessionResponse) isResponse() {}
func (SessionMetrics) isResponse()        {}
func (ProjectResponse) isResponse()       {}

// Errorf builds an ErrorResponse
func Errorf(format string, args ...any) ErrorResponse {
	return ErrorResponse{Message: fmt.Sprintf(format, args...)}
}

type envelope struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

type decoder[M any] func(json.RawMessage) (M, error)

func decodeAs[T any, M any](conv func(T) M) decoder[M] {
	return func(data json.RawMessage) (M, error) {
		var v T
		if len(data) > 0 && string(data) != "null" {
			if err := json.Unmarshal(data, &v); err != nil {
				var zero M
				return zero, err
			}
		}
		return conv(v), nil
	}
}

func req[T Request]() decoder[Request]   { return decodeAs[T](func(v T) Request { return v }) }
func resp[T Response]() decoder[Response] { return decodeAs[T](func(v T) Response { return v }) }

var requestDecoders = map[string]decoder[Request]{
	"Ping":              req[Ping](),
	"GetStatus":         req[GetStatus](),
	"ProjectEntered":    req[ProjectEntered](),
	"ProjectLeft":       req[ProjectLeft](),
	"StartSession":      req[StartSession](),
	"StopSession":       req[StopSession](),
	"PauseSession":      req[PauseSession](),
	"ResumeSession":     req[ResumeSession](),
	"GetActiveSession":  req[GetActiveSession](),
	"Shutdown":          req[Shutdown](),
	"ActivityHeartbeat": req[ActivityHeartbeat](),
	"SwitchProject":     req[SwitchProject](),
	"GetSessionMetrics": req[GetSessionMetrics](),
	"GetProject":        req[GetProject](),
}

var responseDecoders = map[string]decoder[Response]{
	"Pong":           resp[Pong](),
	"Ok":             resp[Ok](),
	"Error":          resp[ErrorResponse](),
	"Status":         resp[Status](),
	"SessionInfo":    resp[SessionInfo](),
	"ActiveSession":  resp[ActiveSessionResponse](),
	"SessionMetrics": resp[SessionMetrics](),
	"Project":        resp[ProjectResponse](),
}

func encode(kind string, v any) ([]byte, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, &ProtocolError{Op: "encode", Err: err}
	}
	env := envelope{Type: kind}
	if string(data) != "{}" {
		env.Data = data
	}
	out, err := json.Marshal(env)
	if err != nil {
		return nil, &ProtocolError{Op: "encode", Err: err}
	}
	return out, nil
}

func decode[M any](payload []byte, table map[string]decoder[M]) (M, error) {
	var zero M
	var env envelope
	if err := json.Unmarshal(payload, &env); err != nil {
		return zero, &ProtocolError{Op: "decode", Err: err}
	}
	dec, ok := table[env.Type]
	if !ok {
		return zero, &ProtocolError{Op: "decode", Err: fmt.Errorf("%w: %q", ErrUnknownMessage, env.Type)}
	}
	m, err := dec(env.Data)
	if err != nil {
		return zero, &ProtocolError{Op: "decode", Err: fmt.Errorf("%s: %w", env.Type, err)}
	}
	return m, nil
}

// EncodeRequest returns the JSON envelope for r
func EncodeRequest(r Request) ([]byte, error) { return encode(r.Kind(), r) }

// EncodeResponse returns the JSON envelope for r
func EncodeResponse(r Response) ([]byte, error) { return encode(r.Kind(), r) }

// DecodeRequest parses a request envelope
func DecodeRequest(payload []byte) (Request, error) { return decode(payload, requestDecoders) }

// DecodeResponse parses a response envelope
func DecodeResponse(payload []byte) (Response, error) { return decode(payload, responseDecoders) }

// ReadRequest reads and decodes one request frame
func ReadRequest(r io.Reader) (Request, error) {
	payload, err := ReadFrame(r)
	if err != nil {
		return nil, err
	}
	return DecodeRequest(payload)
}

// WriteRequest encodes and writes one request frame
func WriteRequest(w io.Writer, req Request) error {
	payload, err := EncodeRequest(req)
	if err != nil {
		return err
	}
	return WriteFrame(w, payload)
}

// ReadResponse reads and decodes one response frame
func ReadResponse(r io.Reader) (Response, error) {
	payload, err := ReadFrame(r)
	if err != nil {
		return nil, err
	}
	return DecodeResponse(payload)
}

// WriteResponse encodes and writes one response frame
func WriteResponse(w io.Writer, resp Response) error {
	payload, err := EncodeResponse(resp)
	if err != nil {
		return err
	}
	return WriteFrame(w, payload)
}
