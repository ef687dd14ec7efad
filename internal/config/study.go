package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/FelipeSBarros/Hospots-Climaticos/internal/domain"
	"gopkg.in/yaml.v3"
)

// Study describes one analysis: where the grids are, which variables to
// compare, how to normalize them, and which zone datasets to report on.
type Study struct {
	NoData         float64           `yaml:"nodata"`
	RasterDir      string            `yaml:"raster_dir"`
	OutputDir      string            `yaml:"output_dir"`
	HistPattern    string            `yaml:"hist_pattern"` // "{index}" is replaced by the variable index
	FutPattern     string            `yaml:"fut_pattern"`
	Variables      []VariableSpec    `yaml:"variables"`
	Normalization  NormalizationSpec `yaml:"normalization"`
	InversionPoint string            `yaml:"inversion_point"`
	Datasets       []DatasetSpec     `yaml:"datasets"`
}

// VariableSpec is one bioclimatic variable of the study.
type VariableSpec struct {
	Key         string `yaml:"key"`
	Index       int    `yaml:"index"`
	Name        string `yaml:"name"`
	Description string `yaml:"description"`
	Group       string `yaml:"group"`
	Invert      bool   `yaml:"invert"`
	HistPath    string `yaml:"hist_path"` // overrides HistPattern
	FutPath     string `yaml:"fut_path"`  // overrides FutPattern
}

// NormalizationSpec selects the normalization mode and, for per-zone mode,
// the zones each variable is normalized within.
type NormalizationSpec struct {
	Mode  string     `yaml:"mode"`
	Zones ZoneSource `yaml:"zones"`
}

// ZoneSource is a polygon file and the attribute naming its zones. Layer
// selects a layer of multi-layer sources such as GeoPackages.
type ZoneSource struct {
	Path  string `yaml:"path"`
	Layer string `yaml:"layer,omitempty"`
	Field string `yaml:"field"`
}

// DatasetSpec is one zone dataset reported on, e.g. the departments of a country.
type DatasetSpec struct {
	Key     string `yaml:"key"`
	Country string `yaml:"country"` // defaults to the key up to the first "_"
	Level   string `yaml:"level"`
	Path    string `yaml:"path"`
	Layer   string `yaml:"layer,omitempty"` // empty reads the first layer
	Field   string `yaml:"field"`
	Sheet   string `yaml:"sheet"`
	Radar   bool   `yaml:"radar"`
}

// LoadStudy reads a study file. A missing or unreadable file yields an error
// wrapping domain.ErrSourceUnavailable.
func LoadStudy(path string) (*Study, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w: %w", path, domain.ErrSourceUnavailable, err)
	}
	s := DefaultStudy()
	s.Variables, s.Datasets = nil, nil
	if err := yaml.Unmarshal(data, s); err != nil {
		return nil, fmt.Errorf("unmarshal %s: %w", path, err)
	}
	if len(s.Variables) == 0 {
		s.Variables = DefaultStudy().Variables
	}
	return s, nil
}

// WriteStudy writes s as YAML to path.
func WriteStudy(path string, s *Study) error {
	data, err := yaml.Marshal(s)
	if err != nil {
		return fmt.Errorf("marshal study: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	return nil
}

// DefaultStudy is the four-variable WorldClim study over the Paraguay,
// Uruguay, Brazil, and Argentina administrative units.
func DefaultStudy() *Study {
	return &Study{
		NoData:      -9999,
		RasterDir:   "RASTER",
		OutputDir:   "RESULTADOS",
		HistPattern: "bio{index}_his.tif",
		FutPattern:  "bio{index}_fut.tif",
		Variables: []VariableSpec{
			{Key: "bio1", Index: 1, Name: "BIO1", Description: "Annual mean temperature", Group: "thermal"},
			{Key: "bio5", Index: 5, Name: "BIO5", Description: "Max temperature of warmest month", Group: "thermal"},
			{Key: "bio14", Index: 14, Name: "BIO14", Description: "Precipitation of driest month", Group: "hydric", Invert: true},
			{Key: "bio15", Index: 15, Name: "BIO15", Description: "Precipitation seasonality", Group: "hydric"},
		},
		Normalization: NormalizationSpec{
			Mode:  "global",
			Zones: ZoneSource{Path: "VECTOR/Area_Estudio/Area_Estudio.shp"},
		},
		InversionPoint: "at_delta",
		Datasets: []DatasetSpec{
			{Key: "PARAGUAY_DEPTO", Level: "Departamento", Path: "VECTOR/paraguay_2/depts_estudio.shp", Field: "dpto_desc", Radar: true},
			{Key: "URUGUAY_DEPTO", Level: "Departamento", Path: "VECTOR/departamentos/c004Polygon.shp", Field: "nombre", Radar: true},
			{Key: "BRASIL_ESTADO", Level: "Estado", Path: "VECTOR/datos_BR.gpkg", Layer: "estados_br", Field: "nome", Radar: true},
			{Key: "ARGENTINA_PROV", Level: "Provincia", Path: "VECTOR/provincia/Provincias.shp", Field: "nam", Radar: true},
			{Key: "ARGENTINA_REGION", Level: "Región", Path: "VECTOR/regiones/Regiones_ARG.shp", Field: "REGION"},
		},
	}
}

// Validate checks that the study can be run.
func (s *Study) Validate() error {
	var errs []error
	if len(s.Variables) == 0 {
		errs = append(errs, errors.New("no variables"))
	}
	seen := map[string]bool{}
	for i, v := range s.Variables {
		if v.Key == "" {
			errs = append(errs, fmt.Errorf("variable %d: key is required", i))
		}
		if seen[strings.ToLower(v.Key)] {
			errs = append(errs, fmt.Errorf("variable %q: duplicate key", v.Key))
		}
		seen[strings.ToLower(v.Key)] = true
		if _, err := parseGroup(v.Group); err != nil {
			errs = append(errs, fmt.Errorf("variable %q: %w", v.Key, err))
		}
		if v.Index <= 0 && (v.HistPath == "" || v.FutPath == "") {
			errs = append(errs, fmt.Errorf("variable %q: index or hist_path and fut_path are required", v.Key))
		}
	}
	mode, err := s.Mode()
	if err != nil {
		errs = append(errs, err)
	}
	if err == nil && mode == domain.PerZone && s.Normalization.Zones.Path == "" {
		errs = append(errs, errors.New("per_zone normalization needs normalization.zones.path"))
	}
	if _, err := s.Point(); err != nil {
		errs = append(errs, err)
	}
	keys := map[string]bool{}
	for i, d := range s.Datasets {
		if d.Key == "" || d.Path == "" {
			errs = append(errs, fmt.Errorf("dataset %d: key and path are required", i))
		}
		if keys[d.Key] {
			errs = append(errs, fmt.Errorf("dataset %q: duplicate key", d.Key))
		}
		keys[d.Key] = true
	}
	if s.OutputDir == "" {
		errs = append(errs, errors.New("output_dir is required"))
	}
	return errors.Join(errs...)
}

// Mode is the parsed normalization mode.
func (s *Study) Mode() (domain.NormalizationMode, error) {
	return domain.ParseNormalizationMode(s.Normalization.Mode)
}

// Point is the parsed inversion point.
func (s *Study) Point() (domain.InversionPoint, error) {
	return domain.ParseInversionPoint(s.InversionPoint)
}

// DomainVariables resolves the study variables, including their grid paths.
func (s *Study) DomainVariables() ([]domain.Variable, error) {
	out := make([]domain.Variable, 0, len(s.Variables))
	for _, v := range s.Variables {
		g, err := parseGroup(v.Group)
		if err != nil {
			return nil, fmt.Errorf("variable %q: %w", v.Key, err)
		}
		name := v.Name
		if name == "" {
			name = strings.ToUpper(v.Key)
		}
		out = append(out, domain.Variable{
			Key:         strings.ToLower(v.Key),
			Index:       v.Index,
			Name:        name,
			Description: v.Description,
			Group:       g,
			Invert:      v.Invert,
			HistPath:    s.gridPath(v.HistPath, s.HistPattern, v.Index),
			FutPath:     s.gridPath(v.FutPath, s.FutPattern, v.Index),
		})
	}
	return out, nil
}

func (s *Study) gridPath(explicit, pattern string, index int) string {
	p := explicit
	if p == "" {
		p = strings.ReplaceAll(pattern, "{index}", strconv.Itoa(index))
	}
	if filepath.IsAbs(p) || s.RasterDir == "" {
		return p
	}
	return filepath.Join(s.RasterDir, p)
}

// DatasetReports returns an empty report entry per dataset.
func (s *Study) DatasetReports() []domain.DatasetReport {
	out := make([]domain.DatasetReport, 0, len(s.Datasets))
	for _, d := range s.Datasets {
		out = append(out, domain.DatasetReport{
			Key:        d.Key,
			Country:    d.CountryName(),
			AdminLevel: d.Level,
			Sheet:      d.Sheet,
			Radar:      d.Radar,
		})
	}
	return out
}

// CountryName is Country, or the dataset key up to its first "_".
func (d DatasetSpec) CountryName() string {
	if d.Country != "" {
		return d.Country
	}
	country, _, _ := strings.Cut(d.Key, "_")
	return country
}

func parseGroup(s string) (domain.Group, error) {
	switch domain.Group(strings.ToLower(strings.TrimSpace(s))) {
	case domain.GroupThermal:
		return domain.GroupThermal, nil
	case domain.GroupHydric:
		return domain.GroupHydric, nil
	default:
		return "", fmt.Errorf("unknown group %q (want thermal or hydric)", s)
	}
}
