package api

import (
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"

	"agent-architect/backend/internal/executions"
)

const (
	wsWriteWait  = 10 * time.Second
	wsPongWait   = 60 * time.Second
	wsPingPeriod = wsPongWait * 9 / 10
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
	// auth is cookie or bearer based and checked before the upgrade
	CheckOrigin: func(r *http.Request) bool { return true },
}

// GetExecution returns every update recorded for an execution
// (GET /api/v1/executions/{executionId})
func (s *Server) GetExecution(c echo.Context) error {
	userID, err := currentUser(c)
	if err != nil {
		return err
	}
	execID, err := pathParam(c, "executionId")
	if err != nil {
		return err
	}
	snap, err := s.workflows.Execution(execID, userID)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, snap)
}

// InterruptExecution marks a running execution failed
// (POST /api/v1/executions/{executionId}/interrupt)
func (s *Server) InterruptExecution(c echo.Context) error {
	userID, err := currentUser(c)
	if err != nil {
		return err
	}
	execID, err := pathParam(c, "executionId")
	if err != nil {
		return err
	}
	if err := s.workflows.InterruptExecution(execID, userID); err != nil {
		return err
	}
	snap, err := s.workflows.Execution(execID, userID)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, snap)
}

// StreamExecution replays an execution's updates over a websocket and
// pushes new ones until the terminal update, then closes normally.
// (GET /api/v1/executions/{executionId}/ws)
func (s *Server) StreamExecution(c echo.Context) error {
	userID, err := currentUser(c)
	if err != nil {
		return err
	}
	execID, err := pathParam(c, "executionId")
	if err != nil {
		return err
	}
	// ownership and existence are checked before upgrading so they surface
	// as plain HTTP errors
	if _, err := s.workflows.Execution(execID, userID); err != nil {
		return err
	}

	conn, err := upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		// the upgrader has already written the HTTP error
		s.logger.WithExecution(execID).Warn("websocket upgrade failed", "error", err)
		return nil
	}
	defer conn.Close()

	log := s.logger.WithExecution(execID)
	closed := make(chan struct{})
	go func() {
		defer close(closed)
		conn.SetReadLimit(512)
		_ = conn.SetReadDeadline(time.Now().Add(wsPongWait))
		conn.SetPongHandler(func(string) error {
			return conn.SetReadDeadline(time.Now().Add(wsPongWait))
		})
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ping := time.NewTicker(wsPingPeriod)
	defer ping.Stop()

	from := 0
	for {
		updates, complete, changed, err := s.workflows.ExecutionUpdates(execID, userID, from)
		if err != nil {
			code := websocket.CloseInternalServerErr
			if errors.Is(err, executions.ErrNotFound) {
				code = websocket.ClosePolicyViolation
			}
			closeWith(conn, code, err.Error())
			return nil
		}
		for _, u := range updates {
			_ = conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if err := conn.WriteJSON(u); err != nil {
				log.Debug("websocket write failed", "error", err)
				return nil
			}
		}
		from += len(updates)
		if complete {
			closeWith(conn, websocket.CloseNormalClosure, "execution complete")
			return nil
		}

		select {
		case <-changed:
		case <-closed:
			return nil
		case <-c.Request().Context().Done():
			return nil
		case <-ping.C:
			_ = conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return nil
			}
		}
	}
}

func closeWith(conn *websocket.Conn, code int, text string) {
	msg := websocket.FormatCloseMessage(code, text)
	_ = conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(wsWriteWait))
}
