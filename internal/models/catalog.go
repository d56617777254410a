package models

// Page is a paginated result list returned by the metadata API.
type Page[T any] struct {
	Page         int `json:"page"`
	Results      []T `json:"results"`
	TotalPages   int `json:"total_pages"`
	TotalResults int `json:"total_results"`
}

// Movie is a movie summary as it appears in lists and search results.
type Movie struct {
	ID               int     `json:"id"`
	Title            string  `json:"title"`
	OriginalTitle    string  `json:"original_title"`
	Overview         string  `json:"overview"`
	PosterPath       string  `json:"poster_path"`
	BackdropPath     string  `json:"backdrop_path"`
	ReleaseDate      string  `json:"release_date"`
	VoteAverage      float64 `json:"vote_average"`
	VoteCount        int     `json:"vote_count"`
	Popularity       float64 `json:"popularity"`
	Adult            bool    `json:"adult"`
	GenreIDs         []int   `json:"genre_ids"`
	OriginalLanguage string  `json:"original_language"`
	Video            bool    `json:"video"`
}

// TVShow is a series summary as it appears in lists and search results.
type TVShow struct {
	ID               int      `json:"id"`
	Name             string   `json:"name"`
	OriginalName     string   `json:"original_name"`
	Overview         string   `json:"overview"`
	PosterPath       string   `json:"poster_path"`
	BackdropPath     string   `json:"backdrop_path"`
	FirstAirDate     string   `json:"first_air_date"`
	VoteAverage      float64  `json:"vote_average"`
	VoteCount        int      `json:"vote_count"`
	Popularity       float64  `json:"popularity"`
	GenreIDs         []int    `json:"genre_ids"`
	OriginalLanguage string   `json:"original_language"`
	OriginCountry    []string `json:"origin_country"`
}

type Genre struct {
	ID   int    `json:"id"`
	Name string `json:"name"`
}

// Video is a trailer, teaser or clip attached to a title.
type Video struct {
	ID       string `json:"id"`
	Key      string `json:"key"`
	Name     string `json:"name"`
	Site     string `json:"site"`
	Type     string `json:"type"`
	Official bool   `json:"official"`
}

type CastMember struct {
	ID          int    `json:"id"`
	Name        string `json:"name"`
	Character   string `json:"character"`
	ProfilePath string `json:"profile_path"`
}

type CrewMember struct {
	ID   int    `json:"id"`
	Name string `json:"name"`
	Job  string `json:"job"`
}

type Credits struct {
	Cast []CastMember `json:"cast"`
	Crew []CrewMember `json:"crew"`
}

// VideoList wraps appended or standalone video results.
type VideoList struct {
	Results []Video `json:"results"`
}

type Creator struct {
	ID   int    `json:"id"`
	Name string `json:"name"`
}

type Company struct {
	ID       int    `json:"id"`
	Name     string `json:"name"`
	LogoPath string `json:"logo_path"`
}

// MovieDetails is the full record returned by /movie/{id} with videos and credits appended.
type MovieDetails struct {
	Movie
	Runtime             int        `json:"runtime"`
	Genres              []Genre    `json:"genres"`
	Tagline             string     `json:"tagline"`
	Status              string     `json:"status"`
	Budget              int64      `json:"budget"`
	Revenue             int64      `json:"revenue"`
	ProductionCompanies []Company  `json:"production_companies"`
	Videos              *VideoList `json:"videos,omitempty"`
	Credits             *Credits   `json:"credits,omitempty"`
}

// TVShowDetails is the full record returned by /tv/{id} with videos and credits appended.
type TVShowDetails struct {
	TVShow
	NumberOfSeasons  int        `json:"number_of_seasons"`
	NumberOfEpisodes int        `json:"number_of_episodes"`
	Genres           []Genre    `json:"genres"`
	Tagline          string     `json:"tagline"`
	Status           string     `json:"status"`
	CreatedBy        []Creator  `json:"created_by"`
	Networks         []Company  `json:"networks"`
	Videos           *VideoList `json:"videos,omitempty"`
	Credits          *Credits   `json:"credits,omitempty"`
}

// Title is a media-type agnostic view used by rows, exports and the TUI.
type Title struct {
	ID           int       `json:"id"`
	MediaType    MediaType `json:"media_type"`
	Name         string    `json:"name"`
	Overview     string    `json:"overview"`
	Date         string    `json:"date"`
	VoteAverage  float64   `json:"vote_average"`
	PosterPath   string    `json:"poster_path"`
	BackdropPath string    `json:"backdrop_path"`
}

func (m Movie) AsTitle() Title {
	return Title{
		ID: m.ID, MediaType: MediaMovie, Name: m.Title, Overview: m.Overview, Date: m.ReleaseDate,
		VoteAverage: m.VoteAverage, PosterPath: m.PosterPath, BackdropPath: m.BackdropPath,
	}
}

func (s TVShow) AsTitle() Title {
	return Title{
		ID: s.ID, MediaType: MediaTV, Name: s.Name, Overview: s.Overview, Date: s.FirstAirDate,
		VoteAverage: s.VoteAverage, PosterPath: s.PosterPath, BackdropPath: s.BackdropPath,
	}
}

// Year returns the first four characters of a release or air date.
func (t Title) Year() string {
	if len(t.Date) >= 4 {
		return t.Date[:4]
	}
	return ""
}

func (t Title) Key() Key { return Key{MediaID: t.ID, MediaType: t.MediaType} }

// MoviesAsTitles converts a slice of movies.
func MoviesAsTitles(movies []Movie) []Title {
	out := make([]Title, len(movies))
	for i, m := range movies {
		out[i] = m.AsTitle()
	}
	return out
}

// ShowsAsTitles converts a slice of shows.
func ShowsAsTitles(shows []TVShow) []Title {
	out := make([]Title, len(shows))
	for i, s := range shows {
		out[i] = s.AsTitle()
	}
	return out
}
