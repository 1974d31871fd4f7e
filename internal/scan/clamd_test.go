package scan

import (
	"testing"
	"time"

	"github.com/dutchcoders/go-clamd"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func feed(results ...*clamd.ScanResult) (<-chan *clamd.ScanResult, <-chan struct{}) {
	ch := make(chan *clamd.ScanResult)
	done := make(chan struct{})
	go func() {
		defer close(done)
		defer close(ch)
		for _, r := range results {
			ch <- r
		}
	}()
	return ch, done
}

func waitSender(t *testing.T, done <-chan struct{}) {
	t.Helper()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("result sender still blocked")
	}
}

func TestDrainResults(t *testing.T) {
	cases := []struct {
		name    string
		results []*clamd.ScanResult
		wantErr error
	}{
		{name: "clean", results: []*clamd.ScanResult{{Status: clamd.RES_OK}}},
		{name: "infected", results: []*clamd.ScanResult{{Status: clamd.RES_OK}, {Status: clamd.RES_FOUND}}, wantErr: ErrInfected},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			ch, done := feed(tc.results...)
			err := drainResults(ch)
			if tc.wantErr != nil {
				assert.ErrorIs(t, err, tc.wantErr)
			} else {
				assert.NoError(t, err)
			}
			waitSender(t, done)
		})
	}
}

func TestDrainResults_ErrorKeepsReading(t *testing.T) {
	ch, done := feed(
		&clamd.ScanResult{Status: clamd.RES_ERROR, Description: "size limit exceeded"},
		&clamd.ScanResult{Status: clamd.RES_OK},
		&clamd.ScanResult{Status: clamd.RES_FOUND},
	)

	err := drainResults(ch)
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrInfected)
	assert.Contains(t, err.Error(), "size limit exceeded")
	waitSender(t, done)
}
