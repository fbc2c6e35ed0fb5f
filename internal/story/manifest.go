package story

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

const ManifestName = "story.yaml"

// Save writes the story as YAML, or JSON when path ends in .json.
func Save(s *Story, path string) error {
	var (
		data []byte
		err  error
	)
	if strings.EqualFold(filepath.Ext(path), ".json") {
		data, err = json.MarshalIndent(s, "", "  ")
	} else {
		data, err = yaml.Marshal(s)
	}
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

func Load(path string) (*Story, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var s Story
	if strings.EqualFold(filepath.Ext(path), ".json") {
		err = json.Unmarshal(data, &s)
	} else {
		err = yaml.Unmarshal(data, &s)
	}
	if err != nil {
		return nil, fmt.Errorf("manifest %s: %w", path, err)
	}
	if len(s.Scenes) == 0 {
		return nil, fmt.Errorf("manifest %s: no scenes", path)
	}
	for i := range s.Scenes {
		s.Scenes[i].VisualEffect = ParseVisualEffect(string(s.Scenes[i].VisualEffect))
		s.Scenes[i].SoundEffect = ParseSoundEffect(string(s.Scenes[i].SoundEffect))
	}
	s.Mood = ParseMood(string(s.Mood))
	return &s, nil
}

// Resolve accepts either a manifest file or a run directory holding one.
func Resolve(path string) (string, error) {
	fi, err := os.Stat(path)
	if err != nil {
		return "", err
	}
	if !fi.IsDir() {
		return path, nil
	}
	for _, name := range []string{ManifestName, "story.json"} {
		p := filepath.Join(path, name)
		if _, err := os.Stat(p); err == nil {
			return p, nil
		}
	}
	return FindLatest(path)
}

// FindLatest finds the most recently modified manifest below dir.
func FindLatest(dir string) (string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return "", fmt.Errorf("failed to read stories directory: %w", err)
	}

	var manifests []string
	for _, entry := range entries {
		if entry.IsDir() {
			for _, name := range []string{ManifestName, "story.json"} {
				p := filepath.Join(dir, entry.Name(), name)
				if _, err := os.Stat(p); err == nil {
					manifests = append(manifests, p)
				}
			}
			continue
		}
		ext := strings.ToLower(filepath.Ext(entry.Name()))
		if ext == ".yaml" || ext == ".yml" || ext == ".json" {
			manifests = append(manifests, filepath.Join(dir, entry.Name()))
		}
	}

	if len(manifests) == 0 {
		return "", fmt.Errorf("no story manifests found in %s", dir)
	}

	// newest first
	sort.Slice(manifests, func(i, j int) bool {
		infoI, _ := os.Stat(manifests[i])
		infoJ, _ := os.Stat(manifests[j])
		return infoI.ModTime().After(infoJ.ModTime())
	})

	return manifests[0], nil
}
