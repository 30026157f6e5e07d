package block

// MaxHealth максимальная прочность блока (4 бита)
const MaxHealth = 15

// Block значение одного вокселя. Сравнение блоков идёт только по материалу.
type Block struct {
	Material Material `json:"material"`
	Health   uint8    `json:"health"`
	R        uint8    `json:"r"`
	G        uint8    `json:"g"`
	B        uint8    `json:"b"`
}

// Сторожевые значения для запросов за пределами мира
var (
	AIR   = Block{Material: Air}
	STONE = New(Stone)
)

// New создаёт блок с полной прочностью и базовым цветом материала
func New(m Material) Block {
	if m == Air {
		return AIR
	}
	p := m.props()
	return Block{Material: m, Health: MaxHealth, R: p.BaseR, G: p.BaseG, B: p.BaseB}
}

// NewColored создаёт блок с явным цветом
func NewColored(m Material, r, g, b uint8) Block {
	blk := New(m)
	if m != Air {
		blk.R, blk.G, blk.B = r, g, b
	}
	return blk
}

// Equal сравнивает блоки по материалу
func (b Block) Equal(other Block) bool {
	return b.Material == other.Material
}

// IsAir возвращает true для пустого блока
func (b Block) IsAir() bool { return b.Material == Air }

// Opaque см. Material.Opaque
func (b Block) Opaque() bool { return b.Material.Opaque() }

// Translucent см. Material.Translucent
func (b Block) Translucent() bool { return b.Material.Translucent() }

// Collides см. Material.Collides
func (b Block) Collides() bool { return b.Material.Collides() }

// Passable возвращает true, если сквозь блок можно пройти
func (b Block) Passable() bool {
	return b.Material == Air || b.Material.props().Passable
}

// Alpha прозрачность материала для вершинного цвета
func (b Block) Alpha() float32 {
	if b.Material == Air {
		return 0
	}
	return b.Material.props().Alpha
}

// Indestructible возвращает true для блоков, игнорирующих урон
func (b Block) Indestructible() bool {
	return b.Material != Air && b.Material.props().Indestructible
}

// Occludes сообщает, скрывает ли этот блок грань соседа neighbor.
// Непрозрачный блок скрывает любую грань, полупрозрачный только грань другого полупрозрачного.
func (b Block) Occludes(neighbor Block) bool {
	if b.Opaque() {
		return true
	}
	return b.Translucent() && neighbor.Translucent()
}

// Damage уменьшает прочность с ограничением снизу нулём.
// Возвращает новый блок и признак разрушения.
func (b Block) Damage(amount int) (Block, bool) {
	if b.IsAir() || b.Indestructible() || amount <= 0 {
		return b, false
	}
	health := int(b.Health) - amount
	if health <= 0 {
		return AIR, true
	}
	b.Health = ClampHealth(health)
	return b, false
}

// ClampHealth приводит значение к диапазону 0..15
func ClampHealth(h int) uint8 {
	if h < 0 {
		return 0
	}
	if h > MaxHealth {
		return MaxHealth
	}
	return uint8(h)
}

// Pack упаковывает материал и прочность в один байт (material<<4 | health)
func (b Block) Pack() byte {
	return byte(b.Material&0x0F)<<4 | b.Health&0x0F
}

// Unpack восстанавливает блок из упакованного байта и цвета
func Unpack(packed byte, r, g, bl uint8) Block {
	m := Material(packed >> 4)
	if m == Air {
		return AIR
	}
	return Block{Material: m, Health: packed & 0x0F, R: r, G: g, B: bl}
}
