package game

import (
	"time"

	"pokeclicker/internal/candy"
	"pokeclicker/internal/upgrades"
)

type Profile struct {
	ID                string          `json:"id"`
	Username          string          `json:"username"`
	RareCandy         candy.Amount    `json:"rare_candy"`
	Upgrades          upgrades.Levels `json:"upgrades"`
	OwnedPokemonIDs   []int           `json:"owned_pokemon_ids"`
	FavoritePokemonID *int            `json:"favorite_pokemon_id"`
	SelectedPokemonID *int            `json:"selected_pokemon_id"`
	ShowInRanks       bool            `json:"show_in_ranks"`
	Yield             upgrades.Yield  `json:"yield"`
	CreatedAt         time.Time       `json:"created_at"`
}

func (p Profile) Owns(pokemonID int) bool {
	for _, id := range p.OwnedPokemonIDs {
		if id == pokemonID {
			return true
		}
	}
	return false
}

type LoginRecord struct {
	UserID       string
	Username     string
	PasswordHash string
}

type AddCandyInput struct {
	UserID         string
	Amount         candy.Amount
	IdempotencyKey string
}

type UpgradeView struct {
	Key          string       `json:"key"`
	DisplayName  string       `json:"display_name"`
	Unit         string       `json:"unit"`
	Level        int          `json:"level"`
	Effect       float64      `json:"effect"`
	PerUnitBonus *float64     `json:"per_unit_bonus,omitempty"`
	NextCost     candy.Amount `json:"next_cost"`
}

type UpgradeResult struct {
	Key      string       `json:"key"`
	Level    int          `json:"level"`
	Paid     candy.Amount `json:"paid"`
	NextCost candy.Amount `json:"next_cost"`
	Profile  Profile      `json:"user"`
}

type PurchaseResult struct {
	PokemonID int          `json:"pokemon_id"`
	Paid      candy.Amount `json:"paid"`
	Estimated bool         `json:"estimated"`
	Profile   Profile      `json:"user"`
}

type PokemonUpgradeView struct {
	PokemonID int          `json:"pokemon_id"`
	Level     int          `json:"level"`
	Cost      candy.Amount `json:"cost"`
	Profile   *Profile     `json:"user,omitempty"`
}

type RankRow struct {
	Position int    `json:"position"`
	UserID   string `json:"user_id"`
	Username string `json:"username"`
	Score    string `json:"score"`
}

type ViewerRanks struct {
	CandyRank   int `json:"candy_rank"`
	PokemonRank int `json:"pokemon_rank"`
}

type Ranks struct {
	CandyLeague   []RankRow    `json:"candy_league"`
	PokemonLeague []RankRow    `json:"pokemon_league"`
	TotalPlayers  int          `json:"total_players"`
	Viewer        *ViewerRanks `json:"viewer,omitempty"`
}

type CatalogRefresh struct {
	Upserted  int `json:"upserted"`
	Estimated int `json:"estimated"`
	Batches   int `json:"batches"`
}

// CatalogEntry is one pokedex row. Types and Sprite are empty until the
// catalog refresh has seen a complete upstream record.
type CatalogEntry struct {
	ID         int          `json:"id"`
	Name       string       `json:"name"`
	Generation string       `json:"generation"`
	Types      []string     `json:"types"`
	Sprite     string       `json:"sprite"`
	BST        int          `json:"bst"`
	Price      candy.Amount `json:"price"`
	Estimated  bool         `json:"estimated"`
	Owned      bool         `json:"is_owned"`
}

type PokemonDetail struct {
	CatalogEntry
	Height    int            `json:"height"`
	Weight    int            `json:"weight"`
	Abilities []string       `json:"abilities"`
	Stats     map[string]int `json:"stats,omitempty"`
}

// PokedexQuery filters the catalog. Types match when any of them does.
// SortBy is one of id, name, type, bst or price; SortOrder asc or desc.
type PokedexQuery struct {
	Search     string
	Generation string
	Types      []string
	SortBy     string
	SortOrder  string
	Limit      int
	Offset     int
	OwnedOnly  bool
}

type PokedexPage struct {
	Pokemon []CatalogEntry `json:"pokemon"`
	Total   int            `json:"total"`
}
