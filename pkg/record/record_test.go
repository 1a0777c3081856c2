package record

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncode_Layout(t *testing.T) {
	b, err := Encode(Sample{
		Pressure:    101325 + 0x1234,
		Temperature: 200,
		Battery:     4.2,
		Servo:       1500,
	})
	require.NoError(t, err)

	// pressure little-endian, then temperature, battery, servo
	assert.Equal(t, [Size]byte{0x34, 0x12, 140, 44, 126}, b)
}

func TestEncode_ConcreteSample(t *testing.T) {
	s := Sample{Pressure: 101325, Temperature: 200, Battery: 4.2, Servo: NoServo}
	b, err := Encode(s)
	require.NoError(t, err)
	assert.False(t, IsBlank(b[:]))

	got, err := Decode(b[:])
	require.NoError(t, err)
	assert.Equal(t, int32(101325), got.Pressure)
	assert.Equal(t, float32(200), got.Temperature)
	assert.InDelta(t, 4.2, got.Battery, 1e-5)
	assert.Equal(t, NoServo, got.Servo)
}

func TestPressure_RoundTrip(t *testing.T) {
	for raw := math.MinInt16; raw <= math.MaxInt16; raw++ {
		v := PressureValue(int16(raw))
		require.Equal(t, int16(raw), PressureRaw(v), "pressure %d", v)
	}
	assert.Equal(t, int32(68557), PressureValue(math.MinInt16))
	assert.Equal(t, int32(134092), PressureValue(math.MaxInt16))
}

func TestPressure_Clamp(t *testing.T) {
	assert.Equal(t, int16(math.MinInt16), PressureRaw(0))
	assert.Equal(t, int16(math.MaxInt16), PressureRaw(200000))
	assert.Equal(t, int16(math.MinInt16), PressureRaw(math.MinInt32))
	assert.Equal(t, int16(math.MaxInt16), PressureRaw(math.MaxInt32))
}

func TestUint8Fields_RoundTrip(t *testing.T) {
	for raw := 0; raw <= math.MaxUint8; raw++ {
		r := uint8(raw)
		assert.Equal(t, r, TemperatureRaw(TemperatureValue(r)), "temperature raw %d", raw)
		assert.Equal(t, r, BatteryRaw(BatteryValue(r)), "battery raw %d", raw)
		assert.Equal(t, r, ServoRaw(ServoValue(r)), "servo raw %d", raw)
	}
}

func TestFieldRanges(t *testing.T) {
	assert.Equal(t, float32(-150), TemperatureValue(0))
	assert.Equal(t, float32(487.5), TemperatureValue(255))
	assert.InDelta(t, 2.0, BatteryValue(0), 1e-6)
	assert.InDelta(t, 14.75, BatteryValue(255), 1e-5)
	assert.Equal(t, NoServo, ServoValue(0))
	assert.Equal(t, uint16(MinServo), ServoValue(1))
	assert.Equal(t, uint16(500), ServoValue(1))
	assert.Equal(t, uint16(MaxServo), ServoValue(255))
}

func TestFieldClamp(t *testing.T) {
	tests := []struct {
		name string
		got  uint8
		want uint8
	}{
		{"temperature below range", TemperatureRaw(-1000), 0},
		{"temperature above range", TemperatureRaw(1000), 255},
		{"temperature NaN", TemperatureRaw(float32(math.NaN())), 0},
		{"temperature rounds half up", TemperatureRaw(-148.75), 1},
		{"battery below range", BatteryRaw(0), 0},
		{"battery above range", BatteryRaw(30), 255},
		{"battery rounds", BatteryRaw(4.21), 44},
		{"servo absent", ServoRaw(NoServo), 0},
		{"servo tiny pulse is still a reading", ServoRaw(1), 1},
		{"servo minimum", ServoRaw(500), 1},
		{"servo rounds down", ServoRaw(1503), 126},
		{"servo rounds up", ServoRaw(1504), 127},
		{"servo above range", ServoRaw(3000), 255},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.got)
		})
	}
}

func TestRoundTrip_Combinations(t *testing.T) {
	edges8 := []uint8{0, 1, 2, 127, 128, 254, 255}
	edges16 := []int16{math.MinInt16, math.MinInt16 + 1, -2, -1, 0, 1, math.MaxInt16 - 1, math.MaxInt16}

	for _, p := range edges16 {
		for _, tr := range edges8 {
			for _, br := range edges8 {
				for _, sr := range edges8 {
					raw := Raw{Pressure: p, Temperature: tr, Battery: br, Servo: sr}
					s := raw.Sample()

					b, err := Encode(s)
					if raw.Bytes() == Blank {
						assert.ErrorIs(t, err, ErrReservedPattern)
						continue
					}
					require.NoError(t, err, "raw %+v", raw)
					assert.Equal(t, raw.Bytes(), b)

					got, err := Decode(b[:])
					require.NoError(t, err)
					assert.Equal(t, s, got)
				}
			}
		}
	}
}

func TestEncode_NeverBlank(t *testing.T) {
	// Only one tuple packs to the erased pattern; walk every pressure value
	// against the all-ones corner of the other fields.
	for raw := math.MinInt16; raw <= math.MaxInt16; raw++ {
		s := Raw{Pressure: int16(raw), Temperature: 255, Battery: 255, Servo: 255}.Sample()
		b, err := Encode(s)
		if raw == -1 {
			require.ErrorIs(t, err, ErrReservedPattern)
			continue
		}
		require.NoError(t, err)
		require.False(t, IsBlank(b[:]), "pressure raw %d", raw)
	}

	// And every value of each 8-bit field with everything else at its top.
	for raw := 0; raw < math.MaxUint8; raw++ {
		for _, r := range []Raw{
			{Pressure: -1, Temperature: uint8(raw), Battery: 255, Servo: 255},
			{Pressure: -1, Temperature: 255, Battery: uint8(raw), Servo: 255},
			{Pressure: -1, Temperature: 255, Battery: 255, Servo: uint8(raw)},
		} {
			b, err := Encode(r.Sample())
			require.NoError(t, err)
			require.False(t, IsBlank(b[:]))
		}
	}
}

func TestEncode_ReservedPattern(t *testing.T) {
	s := Sample{
		Pressure:    PressureOffset - 1,
		Temperature: 487.5,
		Battery:     14.75,
		Servo:       MaxServo,
	}
	_, err := Encode(s)
	assert.ErrorIs(t, err, ErrReservedPattern)

	// Any single step away is fine.
	s.Servo = MaxServo - ServoScale
	_, err = Encode(s)
	assert.NoError(t, err)
}

func TestEncodeTo_ShortBuffer(t *testing.T) {
	err := EncodeTo(make([]byte, Size-1), Sample{Pressure: PressureOffset})
	assert.ErrorIs(t, err, ErrShortBuffer)

	_, err = Decode(make([]byte, 3))
	assert.ErrorIs(t, err, ErrShortBuffer)
}

func TestIsBlank(t *testing.T) {
	assert.True(t, IsBlank(Blank[:]))
	assert.True(t, IsBlank([]byte{0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0x00}))
	assert.False(t, IsBlank([]byte{0xFF, 0xFF, 0xFF, 0xFF, 0xFE}))
	assert.False(t, IsBlank([]byte{0xFF, 0xFF}))
}

func TestQuantize(t *testing.T) {
	q := Quantize(Sample{Pressure: 90000, Temperature: 201, Battery: 4.23, Servo: 1499})
	assert.Equal(t, int32(90000), q.Pressure)
	assert.Equal(t, float32(200), q.Temperature)
	assert.InDelta(t, 4.25, q.Battery, 1e-5)
	assert.Equal(t, uint16(1500), q.Servo)
	assert.Equal(t, q, Quantize(q))
}
