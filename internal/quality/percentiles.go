package quality

// Empirical percentile boundaries, one value per percentile, derived from
// historical measurement dumps for each source.

var gutenbergDownloadPercentiles = []float64{
	2, 3, 4, 5, 6, 7, 8, 9, 10, 11, 12, 13, 14, 15, 16, 17, 18, 19, 20, 21,
	22, 23, 24, 25, 26, 27, 28, 29, 30, 31, 32, 33, 34, 35, 36, 37, 38, 39,
	40, 41, 42, 47, 52, 58, 66, 74, 83, 93, 105, 118, 134, 151, 171, 193, 218,
	247, 281, 318, 362, 411, 468, 532, 606, 691, 789, 901, 1029, 1176, 1346,
	1541, 1765, 2024, 2322, 2666, 3062, 3520, 4050, 4661, 5369, 6187, 7136,
	8234, 9508, 10985, 12700, 14691, 17005, 19695, 22823, 26465, 30705, 35645,
	41404, 48121, 55959, 65110, 75800, 88295, 102906, 120000,
}

var amazonSalesRankPercentiles = []float64{
	12, 15, 18, 22, 26, 30, 36, 42, 49, 58, 67, 79, 92, 107, 124, 144, 167,
	194, 224, 260, 300, 347, 401, 462, 533, 614, 708, 815, 938, 1078, 1240,
	1424, 1636, 1878, 2155, 2472, 2834, 3249, 3722, 4263, 4881, 5586, 6392,
	7311, 8360, 9556, 10921, 12476, 14249, 16270, 18572, 21194, 24180, 27580,
	31450, 35854, 40865, 46566, 53051, 60424, 68807, 78337, 89167, 101473,
	115454, 131334, 149370, 169849, 193099, 219490, 249442, 283429, 321989,
	365730, 415341, 471601, 535390, 607707, 689678, 782580, 887853, 1007128,
	1142250, 1295302, 1468639, 1664923, 1887163, 2138755, 2423542, 2745859,
	3110607, 3523318, 3990240, 4518430, 5115854, 5791503, 6555529, 7419391,
	8396017, 9500000,
}

var overdrivePopularityPercentiles = []float64{
	0, 1, 2, 3, 4, 6, 8, 12, 16, 20, 26, 32, 39, 46, 54, 63, 73, 83, 94, 106,
	119, 132, 146, 161, 177, 194, 211, 229, 249, 268, 289, 311, 333, 357, 381,
	406, 432, 459, 487, 515, 545, 575, 606, 639, 672, 706, 741, 777, 814, 851,
	890, 930, 970, 1012, 1054, 1098, 1142, 1187, 1234, 1281, 1329, 1378, 1429,
	1480, 1532, 1585, 1639, 1694, 1751, 1808, 1866, 1925, 1985, 2046, 2108,
	2172, 2236, 2301, 2367, 2435, 2503, 2572, 2643, 2714, 2787, 2860, 2935,
	3010, 3087, 3165, 3243, 3323, 3404, 3486, 3569, 3653, 3738, 3824, 3912,
	4000,
}
