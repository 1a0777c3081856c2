package sensor

import "context"

const (
	// DefaultDividerRatio is the 1k/4.7k divider in front of the ADC pin.
	DefaultDividerRatio = 5.7
	// DefaultADCReference is the ADC reference voltage of a 3.3 V board.
	DefaultADCReference = 3.3

	adcFullScale = 65536
)

// ADC is an analog input returning a reading scaled to 16 bits.
// machine.ADC satisfies it.
type ADC interface {
	Get() uint16
}

// DividerBattery reads the supply voltage through a resistor divider.
type DividerBattery struct {
	adc   ADC
	scale float32 // volts per count
}

var _ Battery = (*DividerBattery)(nil)

// NewDividerBattery creates a battery monitor. calibration trims the divider
// tolerance and is 1 for an ideal divider.
func NewDividerBattery(adc ADC, ratio, reference, calibration float32) *DividerBattery {
	if calibration == 0 {
		calibration = 1
	}
	return &DividerBattery{
		adc:   adc,
		scale: ratio * reference * calibration / adcFullScale,
	}
}

// Voltage converts one ADC sample to volts.
func (b *DividerBattery) Voltage(ctx context.Context) (float32, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	return float32(b.adc.Get()) * b.scale, nil
}
