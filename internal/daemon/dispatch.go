package daemon

import (
	"context"
	"errors"

	"github.com/iksnae/tempo/internal"
	"github.com/iksnae/tempo/internal/ipc"
)

// dispatch maps one request to its response. after, when set, runs once the
// response has been written.
func (s *Server) dispatch(ctx context.Context, req ipc.Request) (resp ipc.Response, after func()) {
	st := s.state
	switch r := req.(type) {
	case ipc.Ping:
		return ipc.Pong{}, nil
	case ipc.GetStatus:
		uptime, view := st.Status()
		return ipc.Status{
			DaemonRunning: true,
			ActiveSession: sessionInfo(view),
			Uptime:        int64(uptime.Seconds()),
		}, nil
	case ipc.ProjectEntered:
		return okOrError(st.ProjectEntered(ctx, r.Path, r.Context)), nil
	case ipc.ProjectLeft:
		st.ProjectLeft(r.Path)
		return ipc.Ok{}, nil
	case ipc.StartSession:
		return okOrError(st.StartSession(ctx, r.ProjectPath, r.Context)), nil
	case ipc.StopSession:
		return okOrError(st.Stop(ctx)), nil
	case ipc.PauseSession:
		st.Pause()
		return ipc.Ok{}, nil
	case ipc.ResumeSession:
		st.Resume()
		return ipc.Ok{}, nil
	case ipc.ActivityHeartbeat:
		st.Heartbeat()
		return ipc.Ok{}, nil
	case ipc.SwitchProject:
		return okOrError(st.SwitchProject(ctx, r.ProjectID)), nil
	case ipc.GetActiveSession:
		if info := sessionInfo(st.Active()); info != nil {
			return *info, nil
		}
		return ipc.ActiveSessionResponse{}, nil
	case ipc.GetSessionMetrics:
		v := st.Active()
		if v == nil {
			return ipc.Errorf("no active session"), nil
		}
		return ipc.SessionMetrics{
			SessionID:     v.SessionID,
			ActiveSeconds: int64(v.Duration.Seconds()),
			TotalSeconds:  int64(v.Total().Seconds()),
			PausedSeconds: int64(v.Paused.Seconds()),
			Paused:        v.IsPaused(),
			LastActivity:  v.LastActivity,
		}, nil
	case ipc.GetProject:
		p, err := st.Project(ctx, r.ProjectID)
		switch {
		case errors.Is(err, internal.ErrProjectNotFound):
			return ipc.ProjectResponse{}, nil
		case err != nil:
			return ipc.Errorf("%v", err), nil
		}
		return ipc.ProjectResponse{Project: &ipc.ProjectInfo{
			ID:          p.ID,
			Name:        p.Name,
			Path:        p.Path,
			GitHash:     p.GitHash,
			Description: p.Description,
			Archived:    p.Archived,
			CreatedAt:   p.CreatedAt,
		}}, nil
	case ipc.Shutdown:
		internal.LogInfo("Shutdown requested by client")
		st.Shutdown(ctx)
		return ipc.Ok{}, s.onShutdown
	default:
		return ipc.Errorf("unsupported request: %s", req.Kind()), nil
	}
}

func okOrError(err error) ipc.Response {
	if err != nil {
		return ipc.Errorf("%v", err)
	}
	return ipc.Ok{}
}

func sessionInfo(v *SessionView) *ipc.SessionInfo {
	if v == nil {
		return nil
	}
	return &ipc.SessionInfo{
		ID:          v.SessionID,
		ProjectName: v.ProjectName,
		ProjectPath: v.ProjectPath,
		StartTime:   v.StartTime,
		Context:     v.Context.String(),
		Duration:    int64(v.Duration.Seconds()),
	}
}
