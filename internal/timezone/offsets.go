package timezone

// offsets maps a normalized (lowercase, trimmed) timezone name, city, region,
// IANA identifier or abbreviation to its standard-time UTC offset in hours.
// Daylight saving is not modelled.
var offsets = map[string]float64{
	// UTC
	"utc":            0,
	"gmt":            0,
	"z":              0,
	"etc/utc":        0,
	"london":         0,
	"uk":             0,
	"united kingdom": 0,
	"europe/london":  0,
	"lisbon":         0,
	"portugal":       0,
	"dublin":         0,
	"ireland":        0,
	"reykjavik":      0,
	"iceland":        0,
	"wet":            0,

	// Europe / Africa
	"cet":           1,
	"paris":         1,
	"france":        1,
	"europe/paris":  1,
	"berlin":        1,
	"germany":       1,
	"europe/berlin": 1,
	"madrid":        1,
	"spain":         1,
	"europe/madrid": 1,
	"rome":          1,
	"italy":         1,
	"europe/rome":   1,
	"amsterdam":     1,
	"netherlands":   1,
	"brussels":      1,
	"stockholm":     1,
	"oslo":          1,
	"copenhagen":    1,
	"warsaw":        1,
	"poland":        1,
	"vienna":        1,
	"zurich":        1,
	"prague":        1,
	"lagos":         1,
	"nigeria":       1,
	"africa/lagos":  1,
	"eet":           2,
	"athens":        2,
	"greece":        2,
	"europe/athens": 2,
	"helsinki":      2,
	"finland":       2,
	"kyiv":          2,
	"ukraine":       2,
	"bucharest":     2,
	"cairo":         2,
	"egypt":         2,
	"africa/cairo":  2,
	"johannesburg":  2,
	"south africa":  2,
	"sast":          2,
	"jerusalem":     2,
	"israel":        2,
	"istanbul":      3,
	"turkey":        3,
	"moscow":        3,
	"russia":        3,
	"msk":           3,
	"europe/moscow": 3,
	"nairobi":       3,
	"kenya":         3,
	"riyadh":        3,
	"saudi arabia":  3,
	"tehran":        3.5,
	"iran":          3.5,
	"dubai":         4,
	"uae":           4,
	"asia/dubai":    4,
	"gst":           4,
	"kabul":         4.5,
	"afghanistan":   4.5,

	// Asia / Pacific
	"karachi":          5,
	"pakistan":         5,
	"pkt":              5,
	"india":            5.5,
	"ist":              5.5,
	"mumbai":           5.5,
	"delhi":            5.5,
	"new delhi":        5.5,
	"bangalore":        5.5,
	"kolkata":          5.5,
	"asia/kolkata":     5.5,
	"sri lanka":        5.5,
	"colombo":          5.5,
	"kathmandu":        5.75,
	"nepal":            5.75,
	"dhaka":            6,
	"bangladesh":       6,
	"yangon":           6.5,
	"myanmar":          6.5,
	"bangkok":          7,
	"thailand":         7,
	"jakarta":          7,
	"indonesia":        7,
	"ho chi minh city": 7,
	"vietnam":          7,
	"ict":              7,
	"singapore":        8,
	"asia/singapore":   8,
	"sgt":              8,
	"hong kong":        8,
	"asia/hong_kong":   8,
	"hkt":              8,
	"shanghai":         8,
	"beijing":          8,
	"china":            8,
	"asia/shanghai":    8,
	"taipei":           8,
	"taiwan":           8,
	"manila":           8,
	"philippines":      8,
	"perth":            8,
	"awst":             8,
	"kuala lumpur":     8,
	"malaysia":         8,
	"tokyo":            9,
	"japan":            9,
	"asia/tokyo":       9,
	"jst":              9,
	"seoul":            9,
	"korea":            9,
	"south korea":      9,
	"kst":              9,
	"adelaide":         9.5,
	"darwin":           9.5,
	"acst":             9.5,
	"sydney":           10,
	"melbourne":        10,
	"brisbane":         10,
	"australia":        10,
	"australia/sydney": 10,
	"aest":             10,
	"auckland":         12,
	"new zealand":      12,
	"nzst":             12,
	"pacific/auckland": 12,
	"fiji":             12,
	"tonga":            13,
	"kiribati":         14,

	// Americas
	"brazil":                         -3,
	"sao paulo":                      -3,
	"são paulo":                      -3,
	"rio de janeiro":                 -3,
	"america/sao_paulo":              -3,
	"brt":                            -3,
	"argentina":                      -3,
	"buenos aires":                   -3,
	"america/argentina/buenos_aires": -3,
	"art":                            -3,
	"uruguay":                        -3,
	"montevideo":                     -3,
	"chile":                          -4,
	"santiago":                       -4,
	"newfoundland":                   -3.5,
	"st. john's":                     -3.5,
	"nst":                            -3.5,
	"atlantic":                       -4,
	"halifax":                        -4,
	"ast":                            -4,
	"venezuela":                      -4,
	"caracas":                        -4,
	"bolivia":                        -4,
	"la paz":                         -4,
	"puerto rico":                    -4,
	"eastern":                        -5,
	"est":                            -5,
	"new york":                       -5,
	"america/new_york":               -5,
	"boston":                         -5,
	"miami":                          -5,
	"atlanta":                        -5,
	"toronto":                        -5,
	"america/toronto":                -5,
	"colombia":                       -5,
	"bogota":                         -5,
	"peru":                           -5,
	"lima":                           -5,
	"ecuador":                        -5,
	"central":                        -6,
	"cst":                            -6,
	"chicago":                        -6,
	"america/chicago":                -6,
	"dallas":                         -6,
	"houston":                        -6,
	"mexico":                         -6,
	"mexico city":                    -6,
	"america/mexico_city":            -6,
	"guatemala":                      -6,
	"costa rica":                     -6,
	"mountain":                       -7,
	"mst":                            -7,
	"denver":                         -7,
	"america/denver":                 -7,
	"phoenix":                        -7,
	"arizona":                        -7,
	"america/phoenix":                -7,
	"pacific":                        -8,
	"pst":                            -8,
	"los angeles":                    -8,
	"san francisco":                  -8,
	"seattle":                        -8,
	"vancouver":                      -8,
	"america/los_angeles":            -8,
	"alaska":                         -9,
	"akst":                           -9,
	"anchorage":                      -9,
	"america/anchorage":              -9,
	"hawaii":                         -10,
	"hst":                            -10,
	"honolulu":                       -10,
	"pacific/honolulu":               -10,
	"american samoa":                 -11,
	"baker island":                   -12,
}
