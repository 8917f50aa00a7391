package sensors_test

import (
	"context"
	"errors"
	"math"
	"testing"

	"github.com/drive-control/dcc/internal/sensors"
	"github.com/drive-control/dcc/internal/testutil"
)

// echoSequence replays a fixed series of echo round-trip times.
func echoSequence(times ...float64) sensors.EchoTimeReader {
	i := 0
	return func(ctx context.Context) (float64, error) {
		t := times[i%len(times)]
		i++
		return t, nil
	}
}

func assertClose(t *testing.T, want, got float64) {
	t.Helper()
	if math.Abs(want-got) > 1e-9 {
		t.Fatalf("got %v, want %v", got, want)
	}
}

func TestRangerConvertsEchoTimeToDistance(t *testing.T) {
	r := sensors.NewRanger(echoSequence(0.002))

	reading, err := r.Read(context.Background())
	testutil.AssertNoError(t, err)
	assertClose(t, 0.343, reading.DistanceM) // 0.002s * 343m/s / 2
	if !reading.Valid {
		t.Fatal("first reading should be valid")
	}
}

func TestRangerAppliesCalibration(t *testing.T) {
	r := sensors.NewRanger(echoSequence(0.002))
	r.Calibrate(340, 0.01)

	reading, err := r.Read(context.Background())
	testutil.AssertNoError(t, err)
	assertClose(t, 0.35, reading.DistanceM) // 0.01 + 0.002*340/2
}

func TestRangerRejectsSpikes(t *testing.T) {
	// Three steady samples fill the median window, then a sample far from
	// the median arrives.
	r := sensors.NewRanger(echoSequence(0.002, 0.002, 0.002, 0.02))

	ctx := context.Background()
	for i := 0; i < 3; i++ {
		reading, err := r.Read(ctx)
		testutil.AssertNoError(t, err)
		if !reading.Valid {
			t.Fatalf("steady reading %d marked invalid", i)
		}
	}

	spike, err := r.Read(ctx)
	testutil.AssertNoError(t, err)
	if spike.Valid {
		t.Fatal("spike reading marked valid")
	}
	testutil.AssertEqual(t, len(r.History()), 3)
}

func TestRangerHistoryIsBounded(t *testing.T) {
	r := sensors.NewRanger(echoSequence(0.002))

	ctx := context.Background()
	for i := 0; i < 8; i++ {
		_, err := r.Read(ctx)
		testutil.AssertNoError(t, err)
	}
	testutil.AssertEqual(t, len(r.History()), 5)
}

func TestRangerPropagatesReaderError(t *testing.T) {
	readErr := errors.New("trigger timeout")
	r := sensors.NewRanger(func(ctx context.Context) (float64, error) {
		return 0, readErr
	})

	_, err := r.Read(context.Background())
	if !errors.Is(err, readErr) {
		t.Fatalf("err = %v, want wrapped reader error", err)
	}
}

func TestNewRangerWithFilterValidatesWindow(t *testing.T) {
	_, err := sensors.NewRangerWithFilter(echoSequence(0.002), 0, 0.2, 5)
	if !errors.Is(err, sensors.ErrMedianWindow) {
		t.Fatalf("err = %v, want ErrMedianWindow", err)
	}
}
