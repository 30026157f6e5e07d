package world

// ChunkState стадия жизненного цикла чанка. Стадии упорядочены и растут монотонно,
// кроме возврата Renderable -> Unbuilt при изменении блоков.
type ChunkState int32

const (
	StateUnpopulated ChunkState = iota // блоки ещё не сгенерированы
	StateUnshaped                      // материалы есть, цвета не запечены
	StateUnlit                         // ждёт первичного солнечного прохода
	StateUnbuilt                       // освещён, меша нет или он устарел
	StateMeshReady                     // меш построен в буфере, ждёт выгрузки
	StateRenderable                    // меш выгружен потребителем
)

// AllStates перечисляет стадии по порядку
var AllStates = []ChunkState{
	StateUnpopulated, StateUnshaped, StateUnlit, StateUnbuilt, StateMeshReady, StateRenderable,
}

func (s ChunkState) String() string {
	switch s {
	case StateUnpopulated:
		return "unpopulated"
	case StateUnshaped:
		return "unshaped"
	case StateUnlit:
		return "unlit"
	case StateUnbuilt:
		return "unbuilt"
	case StateMeshReady:
		return "mesh_ready"
	case StateRenderable:
		return "renderable"
	default:
		return "unknown"
	}
}
