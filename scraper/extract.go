package scraper

import (
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"aoc-notifier/pkg/leaderboard"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"
)

const timeLayout = "2006 Jan _2  15:04:05"

// nameRule extracts a display name candidate from one child node of a row.
// ok reports whether the rule applies to the node at all.
type nameRule func(n *html.Node) (name string, ok bool)

// Evaluated in order for every child node; the first applicable rule decides.
var nameRules = []nameRule{textName, linkName}

func textName(n *html.Node) (string, bool) {
	if n.Type != html.TextNode {
		return "", false
	}
	return strings.TrimSpace(n.Data), true
}

// linkName reads the last text node of a link. Parenthesised text such as
// "(AoC++)" or "(Sponsor)" is a badge, not a name.
func linkName(n *html.Node) (string, bool) {
	if n.Type != html.ElementNode || n.Data != "a" {
		return "", false
	}
	last := n.LastChild
	if last == nil || last.Type != html.TextNode {
		return "", true
	}
	text := strings.TrimSpace(last.Data)
	if strings.HasPrefix(text, "(") || strings.HasSuffix(text, ")") {
		return "", true
	}
	return text, true
}

// memberName returns the last non-empty name candidate among the row's children.
func memberName(row *goquery.Selection) string {
	var name string
	for _, n := range row.Nodes {
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			for _, rule := range nameRules {
				candidate, ok := rule(c)
				if !ok {
					continue
				}
				if candidate != "" {
					name = candidate
				}
				break
			}
		}
	}
	return name
}

// textNodes returns the descendant text nodes of a selection in document order.
func textNodes(sel *goquery.Selection) []string {
	var out []string
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.TextNode {
			out = append(out, n.Data)
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	for _, n := range sel.Nodes {
		walk(n)
	}
	return out
}

// rowRank parses the "<n>)" position marker.
func rowRank(row *goquery.Selection) (int, bool) {
	texts := textNodes(row.Find(".leaderboard-position").First())
	if len(texts) == 0 {
		return 0, false
	}
	raw, _, _ := strings.Cut(texts[0], ")")
	rank, err := strconv.ParseUint(strings.TrimSpace(raw), 10, 8)
	if err != nil || rank < 1 || rank > leaderboard.TopRank {
		return 0, false
	}
	return int(rank), true
}

// rowTime parses the "Dec 05  00:01:23" time marker. The last parsable text
// node wins.
func rowTime(row *goquery.Selection, year int) (time.Time, bool) {
	var (
		ts    time.Time
		found bool
	)
	for _, text := range textNodes(row.Find(".leaderboard-time").First()) {
		t, err := time.Parse(timeLayout, fmt.Sprintf("%d %s", year, strings.TrimSpace(text)))
		if err != nil {
			continue
		}
		ts, found = t.Add(leaderboard.ProviderOffset), true
	}
	return ts, found
}

// ExtractSolve turns one leaderboard row into a solve. Rows without a member
// ID, rank or time are expected (sponsor and anonymised entries) and reported
// with ok == false.
func ExtractSolve(row *goquery.Selection, year, day int, part leaderboard.Part) (leaderboard.Solve, bool) {
	rawID, exists := row.Attr("data-user-id")
	if !exists {
		return leaderboard.Solve{}, false
	}
	id, err := strconv.ParseUint(strings.TrimSpace(rawID), 10, 64)
	if err != nil {
		return leaderboard.Solve{}, false
	}

	rank, ok := rowRank(row)
	if !ok {
		return leaderboard.Solve{}, false
	}
	ts, ok := rowTime(row, year)
	if !ok {
		return leaderboard.Solve{}, false
	}

	name := memberName(row)
	if name == "" {
		name = anonymousName(id)
	}

	return leaderboard.Solve{
		Timestamp: ts,
		Member:    leaderboard.Member{Name: name, ID: id},
		Year:      year,
		Day:       day,
		Part:      part,
		Rank:      rank,
	}, true
}

func anonymousName(id uint64) string {
	return fmt.Sprintf("anonymous user #%d", id)
}

// DayPage is the parsed content of a global leaderboard day page.
type DayPage struct {
	Solves  []leaderboard.Solve
	Dropped int // Rows that could not be extracted
}

// ParseDayPage extracts all solves of a global leaderboard day page. The page
// lists the "both stars" board (part 2) and the "first star" board (part 1),
// each introduced by a description marker.
func ParseDayPage(body io.Reader, year, day int) (*DayPage, error) {
	doc, err := goquery.NewDocumentFromReader(body)
	if err != nil {
		return nil, err
	}

	page := &DayPage{}
	var part leaderboard.Part
	doc.Find(".leaderboard-daydesc-both, .leaderboard-daydesc-first, .leaderboard-entry").Each(func(_ int, sel *goquery.Selection) {
		switch {
		case sel.HasClass("leaderboard-daydesc-both"):
			part = leaderboard.PartTwo
		case sel.HasClass("leaderboard-daydesc-first"):
			part = leaderboard.PartOne
		case part == 0:
			page.Dropped++
		default:
			solve, ok := ExtractSolve(sel, year, day, part)
			if !ok {
				page.Dropped++
				return
			}
			page.Solves = append(page.Solves, solve)
		}
	})
	return page, nil
}

// ParseChallengeTitle reads the puzzle title of a challenge page, such as
// "Day 5: Supply Stacks".
func ParseChallengeTitle(body io.Reader) (string, error) {
	doc, err := goquery.NewDocumentFromReader(body)
	if err != nil {
		return "", err
	}
	heading := doc.Find("article.day-desc h2").First().Text()
	title := strings.Trim(strings.TrimSpace(heading), "- ")
	if title == "" {
		return "", errors.New("challenge title not found")
	}
	return title, nil
}
