package main

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"

	"pokeclicker/internal/candy"
	"pokeclicker/internal/game"
	"pokeclicker/internal/pokeapi"
	"pokeclicker/internal/pricing"

	"github.com/fatih/color"
)

var (
	stdinReader = bufio.NewReader(os.Stdin)
	accent      = color.New(color.FgCyan, color.Bold)
	success     = color.New(color.FgGreen, color.Bold)
	warn        = color.New(color.FgYellow, color.Bold)
	danger      = color.New(color.FgRed, color.Bold)
	neutral     = color.New(color.FgHiWhite)
)

func printSuccess(msg string) {
	success.Println(msg)
}

func printWarn(msg string) {
	warn.Println(msg)
}

func printError(msg string) {
	danger.Println(msg)
}

func printInfo(msg string) {
	neutral.Println(msg)
}

func promptRequired(label string) (string, error) {
	for {
		fmt.Printf("%s: ", label)
		text, err := stdinReader.ReadString('\n')
		if err != nil {
			return "", err
		}
		text = strings.TrimSpace(text)
		if text != "" {
			return text, nil
		}
		printWarn(label + " is required.")
	}
}

func promptChoice(label string, options []string, defaultValue string) (string, error) {
	normalized := make(map[string]struct{}, len(options))
	for _, opt := range options {
		normalized[strings.ToLower(strings.TrimSpace(opt))] = struct{}{}
	}
	for {
		fmt.Printf("%s (%s) [%s]: ", label, strings.Join(options, "/"), defaultValue)
		text, err := stdinReader.ReadString('\n')
		if err != nil {
			return "", err
		}
		text = strings.ToLower(strings.TrimSpace(text))
		if text == "" {
			text = strings.ToLower(strings.TrimSpace(defaultValue))
		}
		if _, ok := normalized[text]; ok {
			return text, nil
		}
		printWarn("Invalid option. Please pick one of the listed values.")
	}
}

func promptUsername() (string, error) {
	for {
		name, err := promptRequired("Username")
		if err != nil {
			return "", err
		}
		if err := game.ValidateUsername(name); err != nil {
			printWarn(err.Error())
			continue
		}
		return name, nil
	}
}

func renderProfile(p game.Profile) {
	accent.Printf("\n== %s ==\n", strings.ToUpper(p.Username))
	fmt.Printf("%-18s %s\n", "Rare candy", success.Sprint(formatCandy(p.RareCandy)))
	fmt.Printf("%-18s %d\n", "Pokemon owned", len(p.OwnedPokemonIDs))
	fmt.Printf("%-18s %s\n", "Favorite", optionalID(p.FavoritePokemonID))
	fmt.Printf("%-18s %s\n", "Selected", optionalID(p.SelectedPokemonID))
	fmt.Printf("%-18s %t\n", "Shown in ranks", p.ShowInRanks)
	fmt.Printf("%-18s %.2f\n", "Candy per click", p.Yield.CandyPerClick)
	fmt.Printf("%-18s %.2f%% x%.2f\n", "Lucky hits", p.Yield.LuckyChancePct, p.Yield.LuckyMultiplier)
	fmt.Printf("%-18s %.2f/s\n", "Autoclicker", p.Yield.ClicksPerSecond)
	fmt.Println()
}

func renderUpgrades(views []game.UpgradeView) {
	accent.Println("\n== UPGRADES ==")
	fmt.Printf("%-20s %-24s %6s %12s %20s\n", "KEY", "NAME", "LEVEL", "EFFECT", "NEXT COST")
	for _, v := range views {
		effect := fmt.Sprintf("%.3f %s", v.Effect, v.Unit)
		fmt.Printf("%-20s %-24s %6d %12s %20s\n",
			v.Key,
			truncate(v.DisplayName, 24),
			v.Level,
			effect,
			formatCandy(v.NextCost),
		)
	}
	fmt.Println()
}

func renderQuote(q pricing.Quote) {
	name := q.Name
	if name == "" {
		name = "unknown"
	}
	accent.Printf("\n#%d %s\n", q.ID, name)
	if q.Generation != "" {
		fmt.Printf("%-12s %s\n", "Generation", q.Generation)
	}
	bst := strconv.Itoa(q.BST)
	if q.Estimated {
		bst += warn.Sprint(" (estimated)")
	}
	fmt.Printf("%-12s %s\n", "BST", bst)
	fmt.Printf("%-12s %s\n\n", "Price", formatCandy(q.Price))
}

func renderPokemonDetail(p game.PokemonDetail) {
	renderQuote(pricing.Quote{ID: p.ID, Name: p.Name, Generation: p.Generation, BST: p.BST, Price: p.Price, Estimated: p.Estimated})
	if len(p.Types) > 0 {
		fmt.Printf("%-12s %s\n", "Types", strings.Join(p.Types, "/"))
	}
	if len(p.Abilities) > 0 {
		fmt.Printf("%-12s %s\n", "Abilities", strings.Join(p.Abilities, ", "))
	}
	if p.Height > 0 || p.Weight > 0 {
		fmt.Printf("%-12s %.1fm %.1fkg\n", "Size", float64(p.Height)/10, float64(p.Weight)/10)
	}
	for _, name := range pokeapi.StatNames {
		if v, ok := p.Stats[name]; ok {
			fmt.Printf("  %-16s %3d\n", name, v)
		}
	}
	if p.Owned {
		success.Println("Owned")
	}
	fmt.Println()
}

func renderPokedex(entries []game.CatalogEntry) {
	accent.Println("\n== POKEDEX ==")
	if len(entries) == 0 {
		printInfo("Nothing matches.")
		return
	}
	fmt.Printf("%-6s %-16s %-10s %-16s %5s %24s\n", "#", "NAME", "REGION", "TYPES", "BST", "PRICE")
	for _, e := range entries {
		bst := strconv.Itoa(e.BST)
		if e.Estimated {
			bst += "*"
		}
		mark := ""
		if e.Owned {
			mark = success.Sprint(" owned")
		}
		fmt.Printf("%-6d %-16s %-10s %-16s %5s %24s%s\n",
			e.ID,
			truncate(e.Name, 16),
			e.Generation,
			truncate(strings.Join(e.Types, "/"), 16),
			bst,
			formatCandy(e.Price),
			mark,
		)
	}
	fmt.Println()
}

func renderRanks(r game.Ranks) {
	renderLeague("Candy league", r.CandyLeague)
	renderLeague("Pokemon league", r.PokemonLeague)
	printInfo(fmt.Sprintf("%d visible players", r.TotalPlayers))
	if r.Viewer != nil {
		printInfo(fmt.Sprintf("You: candy #%d, pokemon #%d", r.Viewer.CandyRank, r.Viewer.PokemonRank))
	}
}

func renderLeague(title string, rows []game.RankRow) {
	accent.Printf("\n== %s ==\n", strings.ToUpper(title))
	if len(rows) == 0 {
		printInfo("No ranked players yet.")
		return
	}
	fmt.Printf("%-6s %-20s %24s\n", "RANK", "PLAYER", "SCORE")
	for _, row := range rows {
		fmt.Printf("%-6d %-20s %24s\n", row.Position, truncate(row.Username, 20), comma(row.Score))
	}
}

func optionalID(id *int) string {
	if id == nil {
		return "-"
	}
	return fmt.Sprintf("#%d", *id)
}

func formatCandy(a candy.Amount) string {
	return comma(a.String())
}

// comma groups the integer digits of s in threes.
func comma(s string) string {
	whole, frac, hasFrac := strings.Cut(s, ".")
	if len(whole) <= 3 {
		return s
	}
	var b strings.Builder
	pre := len(whole) % 3
	if pre > 0 {
		b.WriteString(whole[:pre])
		b.WriteByte(',')
	}
	for i := pre; i < len(whole); i += 3 {
		b.WriteString(whole[i : i+3])
		if i+3 < len(whole) {
			b.WriteByte(',')
		}
	}
	if hasFrac {
		b.WriteByte('.')
		b.WriteString(frac)
	}
	return b.String()
}

func truncate(s string, n int) string {
	s = strings.TrimSpace(s)
	if n <= 0 || len(s) <= n {
		return s
	}
	if n <= 3 {
		return s[:n]
	}
	return s[:n-3] + "..."
}
