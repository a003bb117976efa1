package assembler

// timedSentenceTypes are the NMEA 0183 sentence types that carry a
// HHMMSS[.fff] time field at byte offset 7, used to delimit navigation
// epochs (spec glossary: "Block / epoch").
var timedSentenceTypes = [...][3]byte{
	{'G', 'G', 'A'},
	{'R', 'M', 'C'},
	{'B', 'W', 'C'},
	{'Z', 'D', 'A'},
}

// isTimedSentenceType reports whether body (starting at '$') is one of the
// recognized time-bearing sentence types, identified by the 3 characters at
// offset 3.
func isTimedSentenceType(body []byte) bool {
	if len(body) < 6 {
		return false
	}
	for _, t := range timedSentenceTypes {
		if body[3] == t[0] && body[4] == t[1] && body[5] == t[2] {
			return true
		}
	}
	return false
}

// verifyChecksum XORs every byte from offset 1 up to (but not including) the
// trailing "*HH" and compares it against the parsed checksum. body must
// start with '$' and must not include the terminating CR.
func verifyChecksum(body []byte) bool {
	if len(body) < 3 || body[len(body)-3] != '*' {
		return false
	}
	hi := hexValue(body[len(body)-2])
	lo := hexValue(body[len(body)-1])
	if hi < 0 || lo < 0 {
		return false
	}
	want := byte(hi<<4 | lo)

	var got byte
	for _, b := range body[1 : len(body)-3] {
		got ^= b
	}
	return got == want
}

func hexValue(b byte) int {
	switch {
	case b >= '0' && b <= '9':
		return int(b - '0')
	case b >= 'A' && b <= 'F':
		return int(b-'A') + 10
	case b >= 'a' && b <= 'f':
		return int(b-'a') + 10
	default:
		return -1
	}
}

// parseSentenceTimeMs parses the HHMMSS or HHMMSS.fff field at byte offset 7
// into milliseconds-of-day. It returns 0 if the field is absent or
// unparseable, matching the source algorithm's behavior of resetting the
// block's extracted time to 0 on a parse failure rather than leaving the
// previous value in place.
func parseSentenceTimeMs(body []byte) int {
	const offset = 7
	if len(body) < offset+6 {
		return 0
	}
	hour, ok1 := parseFixedDigits(body[offset : offset+2])
	minute, ok2 := parseFixedDigits(body[offset+2 : offset+4])
	sec, ok3 := parseFixedDigits(body[offset+4 : offset+6])
	if !ok1 || !ok2 || !ok3 {
		return 0
	}

	ms := 1000 * (3600*hour + 60*minute + sec)

	idx := offset + 6
	if idx < len(body) && body[idx] == '.' {
		idx++
		start := idx
		for idx < len(body) && body[idx] >= '0' && body[idx] <= '9' {
			idx++
		}
		if idx > start {
			frac, ok := parseFixedDigits(body[start:idx])
			if ok {
				ms += frac
			}
		}
	}
	return ms
}

func parseFixedDigits(digits []byte) (int, bool) {
	if len(digits) == 0 {
		return 0, false
	}
	n := 0
	for _, d := range digits {
		if d < '0' || d > '9' {
			return 0, false
		}
		n = n*10 + int(d-'0')
	}
	return n, true
}
