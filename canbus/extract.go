package canbus

// extractRaw assembles a raw value from payload bytes per the rule.
// MSB-first shifts each subsequent byte into the low bits of a growing
// accumulator; LSB-first walks the span in reverse. Signed one- and
// two-byte values are sign-extended from their width; wider values stay
// unsigned until narrowed by the formula or target write.
//
// The caller has already checked the span against the declared length.
func extractRaw(data []byte, r FieldRule) int32 {
	var acc uint32
	if r.Order == MSBFirst {
		for i := 0; i < r.ByteCount; i++ {
			acc = acc<<8 | uint32(data[r.StartByte+i])
		}
	} else {
		for i := r.ByteCount - 1; i >= 0; i-- {
			acc = acc<<8 | uint32(data[r.StartByte+i])
		}
	}

	if r.Signed {
		switch r.ByteCount {
		case 1:
			return int32(int8(acc))
		case 2:
			return int32(int16(acc))
		}
	}
	return int32(acc)
}
