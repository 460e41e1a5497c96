package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Source kinds understood by the scraper package.
const (
	KindAutocarro = "autocarro"
	KindWebmotors = "webmotors"
)

// SearchSource is one saved search on a listing site.
type SearchSource struct {
	Name    string `yaml:"name"`
	Kind    string `yaml:"kind"`
	URL     string `yaml:"url"`
	Referer string `yaml:"referer"` // page the API request is issued from (webmotors)
}

// SearchConfig lists the searches of one run and the keywords that drop a listing.
type SearchConfig struct {
	Sources []SearchSource `yaml:"sources"`
	Exclude []string       `yaml:"exclude"`
}

// DefaultSearchConfig tracks manual Toyota Etios 1.5 hatchbacks in Rio Grande do Sul.
func DefaultSearchConfig() *SearchConfig {
	return &SearchConfig{
		Sources: []SearchSource{
			{
				Name: "Autocarro",
				Kind: KindAutocarro,
				URL:  "https://m.autocarro.com.br/autobusca/carros?q=etios%201.5&ano_de=2017&preco_ate=55000&cambio=1&estado=43&categoria=3&sort=1",
			},
			{
				Name: "Webmotors",
				Kind: KindWebmotors,
				URL: "https://www.webmotors.com.br/api/search/car?url=https:%2F%2Fwww.webmotors.com.br%2Fcarros%2Frs%3Fautocomplete%3Detios" +
					"%26autocompleteTerm%3DTOYOTA%2520ETIOS%26lkid%3D1705%26tipoveiculo%3Dcarros%26estadocidade%3DRio%2520Grande%2520do%2520Sul" +
					"%26marca1%3DTOYOTA%26modelo1%3DETIOS%26versao1%3D1.5%2520X%2520PLUS%252016V%2520FLEX%25204P%2520MANUAL" +
					"%26marca2%3DTOYOTA%26modelo2%3DETIOS%26versao2%3D1.5%2520XLS%252016V%2520FLEX%25204P%2520MANUAL" +
					"%26marca3%3DTOYOTA%26modelo3%3DETIOS%26versao3%3D1.5%2520XS%252016V%2520FLEX%25204P%2520MANUAL" +
					"%26page%3D1%26anode%3D2016%26cambio%3DManual%26precoate%3D65000" +
					"&displayPerPage=24&actualPage=1&showMenu=true&showCount=true&showBreadCrumb=true&order=1&mediaZeroKm=true",
				Referer: "https://www.webmotors.com.br/carros/rs?autocomplete=etios&perfil=carros&modelo=etios",
			},
		},
		Exclude: []string{"SEDAN"},
	}
}

// LoadSearchConfig reads the YAML search file at path. An empty path yields
// the defaults.
func LoadSearchConfig(path string) (*SearchConfig, error) {
	if path == "" {
		return DefaultSearchConfig(), nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read search config: %w", err)
	}

	var sc SearchConfig
	if err := yaml.Unmarshal(data, &sc); err != nil {
		return nil, fmt.Errorf("failed to parse search config: %w", err)
	}
	if err := sc.Validate(); err != nil {
		return nil, err
	}
	if sc.Exclude == nil {
		sc.Exclude = DefaultSearchConfig().Exclude
	}
	return &sc, nil
}

// Validate checks that every source has a known kind and a URL.
func (sc *SearchConfig) Validate() error {
	if len(sc.Sources) == 0 {
		return fmt.Errorf("search config: no sources")
	}
	for i, s := range sc.Sources {
		switch s.Kind {
		case KindAutocarro, KindWebmotors:
		default:
			return fmt.Errorf("search config: source %d (%s): unknown kind %q", i, s.Name, s.Kind)
		}
		if s.URL == "" {
			return fmt.Errorf("search config: source %d (%s): missing url", i, s.Name)
		}
	}
	return nil
}
