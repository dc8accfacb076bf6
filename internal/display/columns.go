package display

// columnClass decides which formatting rule applies to a column. Membership
// is a fixed, column-name-driven lookup, never inferred from the value.
type columnClass int

const (
	classDefault columnClass = iota
	classDate
	classCount
	classOdds
)

// DefaultColumns is the display order used by the preview table.
var DefaultColumns = []string{
	"Date", "HomeTeam", "AwayTeam", "FTHG", "FTAG", "FTR",
	"AvgH", "AvgD", "AvgA", "Avg>2.5", "Avg<2.5",
	"HomeTeamElo", "AwayTeamElo", "EloDifference",
	"Home_AvgGoalsScored", "Home_AvgGoalsConceded", "Home_Wins", "Home_Draws", "Home_Losses",
	"Away_AvgGoalsScored", "Away_AvgGoalsConceded", "Away_Wins", "Away_Draws", "Away_Losses",
	"HTH_HomeWins", "HTH_AwayWins", "HTH_Draws", "HTH_AvgHomeGoals", "HTH_AvgAwayGoals",
}

var columnClasses = map[string]columnClass{
	"Date": classDate,

	// Goal and win/draw/loss counts render as integers.
	"FTHG":         classCount,
	"FTAG":         classCount,
	"Home_Wins":    classCount,
	"Home_Draws":   classCount,
	"Home_Losses":  classCount,
	"Away_Wins":    classCount,
	"Away_Draws":   classCount,
	"Away_Losses":  classCount,
	"HTH_HomeWins": classCount,
	"HTH_AwayWins": classCount,
	"HTH_Draws":    classCount,

	// Bookmaker prices render with exactly two decimals.
	"AvgH":    classOdds,
	"AvgD":    classOdds,
	"AvgA":    classOdds,
	"Avg>2.5": classOdds,
	"Avg<2.5": classOdds,
}

func classOf(col string) columnClass {
	return columnClasses[col]
}
