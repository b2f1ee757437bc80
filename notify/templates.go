package notify

import (
	"fmt"
	"strings"
	"text/tabwriter"
	"time"

	"aoc-notifier/pkg/leaderboard"
)

const notAvailable = "N/A"

// FormatDuration renders a duration as HH:MM:SS. Hours are not wrapped at 24.
func FormatDuration(d time.Duration) string {
	sign := ""
	if d < 0 {
		sign = "-"
		d = -d
	}
	total := int64(d / time.Second)
	return fmt.Sprintf("%s%02d:%02d:%02d", sign, total/3600, total/60%60, total%60)
}

// FormatRank renders a rank as an English ordinal.
func FormatRank(rank int) string {
	if rank == leaderboard.UnknownRank {
		return fmt.Sprintf(">%d", leaderboard.TopRank)
	}
	suffix := "th"
	switch rank % 100 {
	case 11, 12, 13:
	default:
		switch rank % 10 {
		case 1:
			suffix = "st"
		case 2:
			suffix = "nd"
		case 3:
			suffix = "rd"
		}
	}
	return fmt.Sprintf("%d%s", rank, suffix)
}

func formatCompletions(solves []leaderboard.Solve, year, today int) string {
	var current, late []leaderboard.Solve
	for _, s := range solves {
		if s.Year == year && s.Day == today {
			current = append(current, s)
		} else {
			late = append(late, s)
		}
	}

	var b strings.Builder
	if len(current) > 0 {
		b.WriteString(":star: New completions for today's challenge:\n")
		for _, s := range current {
			fmt.Fprintf(&b, "• *%s* got part %s\n", s.Member.Name, s.Part)
		}
	}
	if len(late) > 0 {
		if b.Len() > 0 {
			b.WriteString("\n")
		}
		b.WriteString(":turtle: Catching up on earlier challenges:\n")
		for _, s := range late {
			fmt.Fprintf(&b, "• *%s* got %d day %d part %s\n", s.Member.Name, s.Year, s.Day, s.Part)
		}
	}
	return strings.TrimSuffix(b.String(), "\n")
}

func formatNewMembers(members []leaderboard.Member) string {
	names := make([]string, len(members))
	for i, m := range members {
		names[i] = "*" + m.Name + "*"
	}
	return fmt.Sprintf(":wave: Welcome to the leaderboard %s!", strings.Join(names, ", "))
}

func formatChallengeUnlocked(title string) string {
	return fmt.Sprintf(":christmas_tree: Today's challenge is up: *%s*. Good luck everyone!", title)
}

func formatHero(hero leaderboard.Hero) string {
	return fmt.Sprintf(":trophy: *%s* made it to the global leaderboard! Part %s, %s place.",
		hero.Member.Name, hero.Part, FormatRank(hero.Rank))
}

func optionalDuration(d *time.Duration) string {
	if d == nil {
		return notAvailable
	}
	return FormatDuration(*d)
}

func optionalTiming(t *leaderboard.Timing) string {
	if t == nil {
		return notAvailable
	}
	return fmt.Sprintf("*%s* (%s)", FormatDuration(t.Delta), FormatRank(t.Rank))
}

func formatStatistics(day int, stats *leaderboard.DayStatistics) string {
	var b strings.Builder
	fmt.Fprintf(&b, ":chart_with_upwards_trend: The global leaderboard for day %d is complete!\n", day)
	fmt.Fprintf(&b, "Part 1: fastest %s, slowest %s\n", optionalDuration(stats.PartOneFastest), optionalDuration(stats.PartOneSlowest))
	fmt.Fprintf(&b, "Part 2: fastest %s, slowest %s\n", optionalDuration(stats.PartTwoFastest), optionalDuration(stats.PartTwoSlowest))
	fmt.Fprintf(&b, "Delta: fastest %s, slowest %s", optionalTiming(stats.DeltaFastest), optionalTiming(stats.DeltaSlowest))
	return b.String()
}

func formatStandings(year int, standings []leaderboard.Standing, at time.Time) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Standings for %d as of %s\n```\n", year, at.UTC().Format("02/01/2006 15:04:05 UTC"))
	tw := tabwriter.NewWriter(&b, 0, 0, 2, ' ', tabwriter.AlignRight)
	for i, st := range standings {
		fmt.Fprintf(tw, "%d)\t%d\t %s\t\n", i+1, st.Score, st.Name)
	}
	_ = tw.Flush()
	b.WriteString("```")
	return b.String()
}
