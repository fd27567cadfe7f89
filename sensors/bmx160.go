package sensors

import (
	"fmt"

	"github.com/b3nn0/goflying/bmx160"
	"github.com/kidoman/embd"

	"github.com/rocketfc/rocketfc/model"
)

const (
	bmx160GyroRange  = 2000
	bmx160AccelRange = 16
	bmx160UpdateFreq = 200
)

// BMX160 is a Bosch BMX160 on the I2C bus and satisfies IMUReader. Boards
// without an ICM-20948 carry one.
type BMX160 struct {
	mpu *bmx160.BMX160
}

// NewBMX160 connects to a BMX160. Its LPFs are set by the driver.
func NewBMX160(i2cbus *embd.I2CBus) (*BMX160, error) {
	mpu, err := bmx160.NewBMX160(i2cbus, bmx160GyroRange, bmx160AccelRange, bmx160UpdateFreq, true, false)
	if err != nil {
		return nil, fmt.Errorf("bmx160: %w", err)
	}
	return &BMX160{mpu: mpu}, nil
}

// Read waits for an averaged sample, converting g to m/s².
func (m *BMX160) Read() (model.ImuSample, *model.MagSample, error) {
	data := new(bmx160.MPUData)
	for i := 0; data.N == 0 && i < 5; i++ {
		data = <-m.mpu.CAvg
	}
	if data.GAError != nil {
		return model.ImuSample{}, nil, fmt.Errorf("bmx160: gyro/accel: %w", data.GAError)
	}
	s := model.ImuSample{
		Ax: data.A1 * model.StandardGravity,
		Ay: data.A2 * model.StandardGravity,
		Az: data.A3 * model.StandardGravity,
		Gx: data.G1,
		Gy: data.G2,
		Gz: data.G3,
	}
	if data.MagError != nil {
		return s, nil, nil
	}
	return s, &model.MagSample{Mx: data.M1, My: data.M2, Mz: data.M3}, nil
}

// Close stops reading the IMU.
func (m *BMX160) Close() {
	m.mpu.CloseMPU()
}
