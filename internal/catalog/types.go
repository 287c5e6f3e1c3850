package catalog

// Topic is one practice topic loaded from YAML, tagged by the content
// authoring pipeline.
type Topic struct {
	ID    string `yaml:"id"`
	Name  string `yaml:"name"`
	Items []Item `yaml:"items"`
}

// Item is a practice item within a topic. Difficulty is an authored
// label (beginner/intermediate/advanced), not a scheduling quantity.
type Item struct {
	ID         string `yaml:"id"`
	Difficulty string `yaml:"difficulty"`
}
