package block

import "fmt"

// Material идентификатор материала блока (младшие 4 бита в сохранённом виде)
type Material uint8

// Константы материалов
const (
	Air     Material = iota // 0, пустота
	Dirt                    // 1
	Grass                   // 2
	Stone                   // 3
	Bedrock                 // 4, неразрушаемый
	Sand                    // 5
	Glass                   // 6, полупрозрачный
	Water                   // 7, полупрозрачный, проходимый

	// MaxMaterials ограничение по формату хранения (полубайт)
	MaxMaterials = 16
)

// Properties описывает свойства материала
type Properties struct {
	Name           string
	Collides       bool
	Opaque         bool
	Translucent    bool
	Passable       bool
	Indestructible bool
	Alpha          float32
	BaseR          uint8
	BaseG          uint8
	BaseB          uint8
}

// registry заполняется в инициализаторе переменной, чтобы быть готовым
// раньше сторожевых блоков (STONE).
var registry = buildRegistry()

func buildRegistry() [MaxMaterials]*Properties {
	var r [MaxMaterials]*Properties
	builtin := []struct {
		m Material
		p Properties
	}{
		{Air, Properties{Name: "air", Passable: true, Alpha: 0}},
		{Dirt, Properties{Name: "dirt", Collides: true, Opaque: true, Alpha: 1, BaseR: 121, BaseG: 85, BaseB: 58}},
		{Grass, Properties{Name: "grass", Collides: true, Opaque: true, Alpha: 1, BaseR: 86, BaseG: 140, BaseB: 58}},
		{Stone, Properties{Name: "stone", Collides: true, Opaque: true, Alpha: 1, BaseR: 128, BaseG: 128, BaseB: 128}},
		{Bedrock, Properties{Name: "bedrock", Collides: true, Opaque: true, Indestructible: true, Alpha: 1, BaseR: 48, BaseG: 48, BaseB: 52}},
		{Sand, Properties{Name: "sand", Collides: true, Opaque: true, Alpha: 1, BaseR: 219, BaseG: 206, BaseB: 148}},
		{Glass, Properties{Name: "glass", Collides: true, Translucent: true, Alpha: 0.4, BaseR: 200, BaseG: 230, BaseB: 240}},
		{Water, Properties{Name: "water", Translucent: true, Passable: true, Alpha: 0.6, BaseR: 48, BaseG: 96, BaseB: 200}},
	}
	for _, b := range builtin {
		p := b.p
		r[b.m] = &p
	}
	return r
}

// Register добавляет свойства материала в регистр
func Register(m Material, props Properties) {
	if int(m) >= MaxMaterials {
		panic(fmt.Sprintf("block: material %d out of range", m))
	}
	p := props
	registry[m] = &p
}

// Get возвращает свойства материала
func Get(m Material) (*Properties, bool) {
	if int(m) >= MaxMaterials || registry[m] == nil {
		return nil, false
	}
	return registry[m], true
}

// IsValidMaterial проверяет, зарегистрирован ли материал
func IsValidMaterial(m Material) bool {
	_, ok := Get(m)
	return ok
}

// ParseMaterial ищет материал по имени
func ParseMaterial(name string) (Material, bool) {
	for i, p := range registry {
		if p != nil && p.Name == name {
			return Material(i), true
		}
	}
	return Air, false
}

func (m Material) props() *Properties {
	if p, ok := Get(m); ok {
		return p
	}
	// незарегистрированный материал ведёт себя как камень
	return registry[Stone]
}

func (m Material) String() string {
	if p, ok := Get(m); ok {
		return p.Name
	}
	return fmt.Sprintf("material(%d)", uint8(m))
}

// Collides возвращает true, если материал твёрдый для физики
func (m Material) Collides() bool { return m != Air && m.props().Collides }

// Opaque возвращает true для материалов, полностью закрывающих соседние грани и свет
func (m Material) Opaque() bool { return m != Air && m.props().Opaque }

// Translucent возвращает true для полупрозрачных материалов
func (m Material) Translucent() bool { return m != Air && m.props().Translucent }
