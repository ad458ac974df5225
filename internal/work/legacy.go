package work

// legacyCutoff is the first block height whose difficulty was recorded in
// the block row itself.
const legacyCutoff = 5000

type legacyRange struct {
	low, high  int64 // [low, high)
	difficulty uint64
}

// legacyRanges must stay sorted by low and non-overlapping.
var legacyRanges = []legacyRange{
	{1, 501, 400000000000},
	{501, 541, 381274937337},
	{541, 546, 350000000000},
	{546, 549, 400000000000},
	{549, 554, 300000000000},
	{554, 635, 288365888229},
	{635, 891, 58365888229},
	{891, 936, 6000000000},
	{936, 1178, 400000000000},
	{1178, 1198, 100000000000},
	{1198, 1208, 30000000000},
	{1208, 1218, 15000000000},
	{1218, 1278, 7000000000},
	{1278, 1286, 10000000000},
	{1286, 1291, 5000000000},
	{1291, 1295, 3000000000},
	{1295, 1301, 1500000000},
	{1301, 1312, 1000000000},
	{1312, 1318, 700000000},
	{1318, 1329, 500000000},
	{1329, 1338, 400000000},
	{1338, 1342, 350000000},
	{1342, 1351, 300000000},
	{1351, 1359, 250000000},
	{1359, 1397, 200000000},
	{1397, 1599, 150000000},
	{1599, 2046, 120000000},
	{2046, 2496, 100000000},
	{2496, 3096, 50000000},
	{3096, 3368, 19875024},
	{3368, 4136, 10000000},
	{4136, 5000, 5000000},
}

// LegacyWork returns the difficulty that was in force when a historic block
// was mined. The second result is false for heights whose own recorded
// difficulty should be used instead.
func LegacyWork(blockID int64) (uint64, bool) {
	if blockID < 1 || blockID >= legacyCutoff {
		return 0, false
	}

	lo, hi := 0, len(legacyRanges)
	for lo < hi {
		mid := (lo + hi) / 2
		r := legacyRanges[mid]
		switch {
		case blockID < r.low:
			hi = mid
		case blockID >= r.high:
			lo = mid + 1
		default:
			return r.difficulty, true
		}
	}
	return 0, false
}
