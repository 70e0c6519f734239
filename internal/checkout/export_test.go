package checkout

import (
	"io"
	"time"
)

func (s *Service) SetClock(now func() time.Time) { s.now = now }

func (s *Service) SetRandom(r io.Reader) { s.random = r }

var IdempotencyKey = idempotencyKey
