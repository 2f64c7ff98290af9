package teams

import "strings"

// ToCode converts the team-code variants seen across predictor builds and
// upstream stat providers to the canonical codes served by the API. Codes
// are uppercased and trimmed first; unknown codes pass through so a new
// team never blocks ingestion.
func ToCode(sport, code string) string {
	code = strings.ToUpper(strings.TrimSpace(code))

	switch sport {
	case "NBA":
		switch code {
		case "GS":
			code = "GSW"
		case "PHO":
			code = "PHX"
		case "SA":
			code = "SAS"
		case "NO":
			code = "NOP"
		case "NY":
			code = "NYK"
		case "BRK":
			code = "BKN"
		case "UTAH":
			code = "UTA"
		}
	case "NFL":
		switch code {
		case "JAX":
			code = "JAC"
		case "WSH":
			code = "WAS"
		case "ARZ":
			code = "ARI"
		case "BLT":
			code = "BAL"
		case "CLV":
			code = "CLE"
		case "HST":
			code = "HOU"
		case "OAK":
			code = "LV"
		case "SD":
			code = "LAC"
		case "STL":
			code = "LAR"
		}
	case "NHL":
		switch code {
		case "TB":
			code = "TBL"
		case "VGS", "VEG":
			code = "VGK"
		case "LA":
			code = "LAK"
		case "SJ":
			code = "SJS"
		case "NJ":
			code = "NJD"
		case "MON":
			code = "MTL"
		case "CLB":
			code = "CBJ"
		}
	case "MLB":
		switch code {
		case "CWS":
			code = "CHW"
		case "SFG":
			code = "SF"
		case "TBR":
			code = "TB"
		case "KCR":
			code = "KC"
		case "SDP":
			code = "SD"
		case "WAS":
			code = "WSH"
		}
	default:
		// Soccer clubs already arrive in the predictor's canonical form.
	}
	return code
}
