package sensors

import (
	"fmt"

	"github.com/b3nn0/goflying/icm20948"
	"github.com/kidoman/embd"

	"github.com/rocketfc/rocketfc/model"
)

const (
	gyroRange  = 2000 // deg/s; a spinning rocket saturates smaller ranges
	accelRange = 16   // g
	updateFreq = 100  // Hz
	lpfHz      = 41   // gyro and accel digital low-pass
)

// ICM20948 is an InvenSense ICM-20948 on the I2C bus and satisfies IMUReader.
type ICM20948 struct {
	mpu *icm20948.ICM20948
}

// NewICM20948 connects to an ICM-20948 at either valid address.
func NewICM20948(i2cbus *embd.I2CBus) (*ICM20948, error) {
	mpu, err := icm20948.NewICM20948(i2cbus, gyroRange, accelRange, updateFreq, true, false)
	if err != nil {
		return nil, fmt.Errorf("icm20948: %w", err)
	}
	mpu.SetGyroLPF(lpfHz)
	mpu.SetAccelLPF(lpfHz)
	return &ICM20948{mpu: mpu}, nil
}

// Read waits for an averaged sample. The driver reports accelerations in g,
// which are converted to m/s².
func (m *ICM20948) Read() (model.ImuSample, *model.MagSample, error) {
	data := new(icm20948.MPUData)
	for i := 0; data.N == 0 && i < 5; i++ {
		data = <-m.mpu.CAvg
	}
	if data.GAError != nil {
		return model.ImuSample{}, nil, fmt.Errorf("icm20948: gyro/accel: %w", data.GAError)
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

// Close stops reading the MPU.
func (m *ICM20948) Close() {
	m.mpu.CloseMPU()
}
