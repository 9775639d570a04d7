package main

import (
	"context"
	"sync"
	"time"

	"fishshoot.dev/server/audit"
)

const pgWriteBacklog = 1024

type pgWrite struct {
	roomID  string
	receipt *audit.Receipt
}

// mirrorSink writes receipts to the local bbolt store synchronously and
// mirrors them to Postgres from a background worker. A slow or down
// mirror never stalls settlement; the bbolt chain is the source of
// truth and the mirror can be rebuilt from it.
type mirrorSink struct {
	store *audit.Store
	pg    *audit.PGSink

	writes    chan pgWrite
	closeOnce sync.Once
	done      chan struct{}
}

func newMirrorSink(store *audit.Store, pg *audit.PGSink) *mirrorSink {
	s := &mirrorSink{
		store:  store,
		pg:     pg,
		writes: make(chan pgWrite, pgWriteBacklog),
		done:   make(chan struct{}),
	}
	go s.mirror()
	return s
}

func (s *mirrorSink) AppendReceipt(roomID string, r *audit.Receipt) error {
	if err := s.store.AppendReceipt(roomID, r); err != nil {
		return err
	}
	if s.pg != nil {
		select {
		case s.writes <- pgWrite{roomID: roomID, receipt: r}:
		default:
			audtLog.Warnf("postgres mirror backlog full, dropping receipt %s/%d", roomID, r.Seq)
		}
	}
	return nil
}

func (s *mirrorSink) PutRoomRecord(rec audit.RoomRecord) error {
	return s.store.PutRoomRecord(rec)
}

func (s *mirrorSink) mirror() {
	defer close(s.done)
	for w := range s.writes {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		err := s.pg.WriteReceipt(ctx, w.roomID, w.receipt)
		cancel()
		if err != nil {
			audtLog.Errorf("postgres mirror write %s/%d: %v", w.roomID, w.receipt.Seq, err)
		}
	}
}

// Close drains queued mirror writes and stops the worker.
func (s *mirrorSink) Close() {
	s.closeOnce.Do(func() {
		close(s.writes)
		<-s.done
	})
}
