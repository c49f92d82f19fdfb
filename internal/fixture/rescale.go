package fixture

// Rescale maps a raw channel byte to the sensor's -2..2 adjustment range.
// Zero is neutral; 1..255 map linearly with integer truncation, so 1 is -2,
// 128 is 0 and 255 is 2.
func Rescale(v byte) int {
	if v == 0 {
		return 0
	}
	return (int(v)-1)*4/254 - 2
}
