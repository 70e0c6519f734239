package models

type Category string

const (
	CategoryShirt     Category = "S"
	CategorySportWear Category = "SW"
	CategoryOutwear   Category = "OW"
)

var categoryLabels = map[Category]string{
	CategoryShirt:     "Shirt",
	CategorySportWear: "Sport wear",
	CategoryOutwear:   "Outwear",
}

// Display returns the human readable category, or the raw code when unknown.
func (c Category) Display() string {
	if s, ok := categoryLabels[c]; ok {
		return s
	}
	return string(c)
}

func (c Category) Valid() bool {
	_, ok := categoryLabels[c]
	return ok
}

type Label string

const (
	LabelPrimary   Label = "P"
	LabelSecondary Label = "S"
	LabelDanger    Label = "D"
)

var labelLabels = map[Label]string{
	LabelPrimary:   "primary",
	LabelSecondary: "secondary",
	LabelDanger:    "danger",
}

func (l Label) Display() string {
	if s, ok := labelLabels[l]; ok {
		return s
	}
	return string(l)
}

func (l Label) Valid() bool {
	_, ok := labelLabels[l]
	return ok
}

type AddressType string

const (
	AddressBilling  AddressType = "B"
	AddressShipping AddressType = "S"
)

func (t AddressType) Valid() bool {
	return t == AddressBilling || t == AddressShipping
}
