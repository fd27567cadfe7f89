package main

import (
	"bytes"
	"context"
	"io"
	"reflect"
	"testing"
	"time"

	"github.com/rocketfc/rocketfc/model"
	"github.com/rocketfc/rocketfc/sensors"
)

type frames []model.Frame

func (f *frames) Read(ctx context.Context) (model.Frame, error) {
	if len(*f) == 0 {
		return model.Frame{}, io.EOF
	}
	fr := (*f)[0]
	*f = (*f)[1:]
	return fr, nil
}

func TestCaptureReplays(t *testing.T) {
	want := []model.Frame{
		{
			T:    10 * time.Millisecond,
			Imu:  model.ImuSample{Ax: 0.25, Az: 9.80665, Gz: -1.5},
			Mag:  &model.MagSample{Mx: 20, Mz: -40},
			Baro: &model.BaroSample{Pressure: 1001.5, Temperature: 21, Altitude: 0.5, ClimbRate: 0.1},
		},
		{
			T:           20 * time.Millisecond,
			Imu:         model.ImuSample{Az: 40},
			Gps:         &model.GpsSample{LatitudeE7: 345000000, LongitudeE7: 1272000000, Altitude: 30, Sats: 7, Fix: true},
			PinDetached: true,
		},
	}
	src := frames(append([]model.Frame(nil), want...))

	var buf bytes.Buffer
	n, err := capture(context.Background(), &src, &buf, 0, 0)
	if err != nil || n != 2 {
		t.Fatalf("captured %d frames: %v", n, err)
	}

	rp, err := sensors.NewReplay(&buf, nil)
	if err != nil {
		t.Fatal(err)
	}
	for i, w := range want {
		got, err := rp.Read(context.Background())
		if err != nil {
			t.Fatal(err)
		}
		if !reflect.DeepEqual(got, w) {
			t.Errorf("frame %d = %+v, want %+v", i, got, w)
		}
	}
	if _, err := rp.Read(context.Background()); err != io.EOF {
		t.Errorf("err = %v, want EOF", err)
	}
}

func TestCaptureLimit(t *testing.T) {
	src := frames(make([]model.Frame, 5))
	var buf bytes.Buffer
	if n, _ := capture(context.Background(), &src, &buf, 0, 3); n != 3 {
		t.Errorf("captured %d frames", n)
	}
}
