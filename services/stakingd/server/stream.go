package server

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"nhooyr.io/websocket"

	"arkenstone/services/indexer"
	"arkenstone/services/stakingd/api"
)

const (
	wsWriteTimeout = 10 * time.Second
	// indexerPage is the page size used while replaying the backlog.
	indexerPage = 500
)

// handleEventStream replays records after the "after" cursor and then
// follows new ones over a websocket.
func (s *Server) handleEventStream(w http.ResponseWriter, r *http.Request) {
	filter, err := eventFilter(r)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{OriginPatterns: []string{"*"}})
	if err != nil {
		return
	}
	defer conn.Close(websocket.StatusNormalClosure, "stream closed")
	ctx := conn.CloseRead(r.Context())
	if err := s.streamEvents(ctx, conn, filter); err != nil {
		if websocket.CloseStatus(err) == -1 && ctx.Err() == nil {
			s.logger.Warn("stakingd: event stream failed", slog.Any("error", err))
			_ = conn.Close(websocket.StatusInternalError, "stream error")
		}
	}
}

func (s *Server) streamEvents(ctx context.Context, conn *websocket.Conn, filter indexer.Filter) error {
	live, cancel := s.records.Subscribe()
	defer cancel()

	cursor := filter
	cursor.Limit = indexerPage
	for {
		backlog, err := s.records.Query(ctx, cursor)
		if err != nil {
			return err
		}
		for _, rec := range backlog {
			if err := writeRecord(ctx, conn, rec); err != nil {
				return err
			}
			cursor.AfterSeq = rec.Seq
		}
		if len(backlog) < indexerPage {
			break
		}
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case rec, ok := <-live:
			if !ok {
				return conn.Close(websocket.StatusTryAgainLater, "subscriber lagged; reconnect with after cursor")
			}
			if rec.Seq <= cursor.AfterSeq || !matches(filter, rec) {
				continue
			}
			if err := writeRecord(ctx, conn, rec); err != nil {
				return err
			}
			cursor.AfterSeq = rec.Seq
		}
	}
}

func matches(filter indexer.Filter, rec indexer.Record) bool {
	if filter.Type != "" && filter.Type != rec.Type {
		return false
	}
	if filter.Pool != "" && filter.Pool != rec.Pool {
		return false
	}
	if filter.Account != "" && filter.Account != rec.Account {
		return false
	}
	return true
}

func writeRecord(ctx context.Context, conn *websocket.Conn, rec indexer.Record) error {
	attrs, err := rec.DecodeAttributes()
	if err != nil {
		return err
	}
	data, err := json.Marshal(api.EventResponse{
		Seq:        rec.Seq,
		Type:       rec.Type,
		Pool:       rec.Pool,
		Account:    rec.Account,
		Attributes: attrs,
		CreatedAt:  rec.CreatedAt.UTC(),
	})
	if err != nil {
		return err
	}
	writeCtx, cancel := context.WithTimeout(ctx, wsWriteTimeout)
	defer cancel()
	return conn.Write(writeCtx, websocket.MessageText, data)
}
