package services

import "telemed/internal/core/domain"

// Presentation is the visual affordance for a quality level.
type Presentation struct {
	Level domain.QualityLevel `json:"level"`
	Icon  string              `json:"icon"`
	Color string              `json:"color"`
	Label string              `json:"label"`
}

// PresentationService maps quality levels to icons and colors.
type PresentationService struct {
	presentations map[domain.QualityLevel]Presentation
}

func NewPresentationService() *PresentationService {
	return &PresentationService{
		presentations: map[domain.QualityLevel]Presentation{
			domain.QualityExcellent:    {Level: domain.QualityExcellent, Icon: "signal-4", Color: "green", Label: "Excellent"},
			domain.QualityGood:         {Level: domain.QualityGood, Icon: "signal-3", Color: "green", Label: "Good"},
			domain.QualityFair:         {Level: domain.QualityFair, Icon: "signal-2", Color: "yellow", Label: "Fair"},
			domain.QualityPoor:         {Level: domain.QualityPoor, Icon: "signal-1", Color: "orange", Label: "Poor"},
			domain.QualityDisconnected: {Level: domain.QualityDisconnected, Icon: "signal-off", Color: "red", Label: "Disconnected"},
		},
	}
}

// Present returns the affordance for a level. Unknown levels get the
// disconnected one.
func (ps *PresentationService) Present(level domain.QualityLevel) Presentation {
	if p, ok := ps.presentations[level]; ok {
		return p
	}
	return ps.presentations[domain.QualityDisconnected]
}
