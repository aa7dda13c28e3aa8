package models

type Room struct {
	Name     string `yaml:"name" json:"name"`
	Building string `yaml:"building" json:"building"`
	Capacity int    `yaml:"capacity" json:"capacity"`
	IsActive bool   `yaml:"is_active" json:"is_active"`
}

// ActiveRoomNames returns the names of active rooms in catalog order.
func ActiveRoomNames(rooms []Room) []string {
	names := make([]string, 0, len(rooms))
	for _, r := range rooms {
		if r.IsActive && r.Name != "" {
			names = append(names, r.Name)
		}
	}
	return names
}
