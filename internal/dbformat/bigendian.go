package dbformat

// Fixed-width big-endian integer decoders for the widths the page format
// uses: 8/16/24/32/48/64-bit unsigned and signed (two's complement), plus
// the IEEE-754 double used by serial type 7.

import "math"

func need(buf []byte, n int) error {
	if len(buf) < n {
		return ErrTruncated
	}
	return nil
}

func ReadUint8(buf []byte) (uint8, error) {
	if err := need(buf, 1); err != nil {
		return 0, err
	}
	return buf[0], nil
}

func ReadUint16BE(buf []byte) (uint16, error) {
	if err := need(buf, 2); err != nil {
		return 0, err
	}
	return uint16(buf[0])<<8 | uint16(buf[1]), nil
}

func ReadUint24BE(buf []byte) (uint32, error) {
	if err := need(buf, 3); err != nil {
		return 0, err
	}
	return uint32(buf[0])<<16 | uint32(buf[1])<<8 | uint32(buf[2]), nil
}

func ReadUint32BE(buf []byte) (uint32, error) {
	if err := need(buf, 4); err != nil {
		return 0, err
	}
	return uint32(buf[0])<<24 | uint32(buf[1])<<16 | uint32(buf[2])<<8 | uint32(buf[3]), nil
}

func ReadUint48BE(buf []byte) (uint64, error) {
	if err := need(buf, 6); err != nil {
		return 0, err
	}
	var v uint64
	for i := 0; i < 6; i++ {
		v = v<<8 | uint64(buf[i])
	}
	return v, nil
}

func ReadUint64BE(buf []byte) (uint64, error) {
	if err := need(buf, 8); err != nil {
		return 0, err
	}
	var v uint64
	for i := 0; i < 8; i++ {
		v = v<<8 | uint64(buf[i])
	}
	return v, nil
}

func ReadInt8(buf []byte) (int64, error) {
	u, err := ReadUint8(buf)
	return int64(int8(u)), err
}

func ReadInt16BE(buf []byte) (int64, error) {
	u, err := ReadUint16BE(buf)
	return int64(int16(u)), err
}

// ReadInt24BE sign-extends a 3-byte two's-complement integer.
func ReadInt24BE(buf []byte) (int64, error) {
	u, err := ReadUint24BE(buf)
	if err != nil {
		return 0, err
	}
	v := int32(u)
	if v&(1<<23) != 0 {
		v |= ^int32(0) << 24
	}
	return int64(v), nil
}

func ReadInt32BE(buf []byte) (int64, error) {
	u, err := ReadUint32BE(buf)
	return int64(int32(u)), err
}

// ReadInt48BE sign-extends a 6-byte two's-complement integer.
func ReadInt48BE(buf []byte) (int64, error) {
	u, err := ReadUint48BE(buf)
	if err != nil {
		return 0, err
	}
	v := int64(u)
	if v&(1<<47) != 0 {
		v |= ^int64(0) << 48
	}
	return v, nil
}

func ReadInt64BE(buf []byte) (int64, error) {
	u, err := ReadUint64BE(buf)
	return int64(u), err
}

func ReadFloat64BE(buf []byte) (float64, error) {
	u, err := ReadUint64BE(buf)
	if err != nil {
		return 0, err
	}
	return math.Float64frombits(u), nil
}
