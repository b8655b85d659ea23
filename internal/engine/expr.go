// Package engine talks to the remote geospatial compute service. Computations
// are described as expression graphs built locally and evaluated remotely when
// an export task is started.
package engine

import "sort"

// Node is one value in an expression graph. Exactly one of Function, ArgRef,
// Lambda or Constant is meaningful.
type Node struct {
	Function string
	Args     map[string]*Node
	ArgRef   string
	Lambda   *Lambda
	Constant any
}

// Lambda is a function definition passed to algorithms such as Collection.map.
type Lambda struct {
	Params []string
	Body   *Node
}

// Value is anything that can be expressed as a graph node.
type Value interface {
	Node() *Node
}

// Invoke builds a call to the named remote algorithm.
func Invoke(name string, args map[string]*Node) *Node {
	return &Node{Function: name, Args: args}
}

// Constant wraps a literal.
func Constant(v any) *Node {
	return &Node{Constant: v}
}

// ArgRef references a lambda parameter.
func ArgRef(name string) *Node {
	return &Node{ArgRef: name}
}

// Functions lists every algorithm invoked by the graph rooted at n, sorted.
func Functions(n *Node) []string {
	seen := map[string]bool{}
	var walk func(*Node)
	walk = func(n *Node) {
		if n == nil {
			return
		}
		if n.Function != "" {
			seen[n.Function] = true
		}
		for _, a := range n.Args {
			walk(a)
		}
		if n.Lambda != nil {
			walk(n.Lambda.Body)
		}
	}
	walk(n)

	out := make([]string, 0, len(seen))
	for f := range seen {
		out = append(out, f)
	}
	sort.Strings(out)
	return out
}

// Image is a remote raster.
type Image struct {
	node *Node
}

// LoadImage resolves an image asset by identifier.
func LoadImage(id string) Image {
	return Image{Invoke("Image.load", map[string]*Node{"id": Constant(id)})}
}

// ImageArg is an image bound to a lambda parameter.
func ImageArg(name string) Image {
	return Image{ArgRef(name)}
}

// ConstantImage is an image with the same value in every pixel.
func ConstantImage(v float64) Image {
	return Image{Invoke("Image.constant", map[string]*Node{"value": Constant(v)})}
}

func (i Image) Node() *Node { return i.node }

func (i Image) unary(name string) Image {
	return Image{Invoke(name, map[string]*Node{"value": i.node})}
}

func (i Image) binary(name string, other Image) Image {
	return Image{Invoke(name, map[string]*Node{"image1": i.node, "image2": other.node})}
}

func (i Image) Abs() Image    { return i.unary("Image.abs") }
func (i Image) Signum() Image { return i.unary("Image.signum") }
func (i Image) Round() Image  { return i.unary("Image.round") }
func (i Image) Int8() Image   { return i.unary("Image.int8") }

func (i Image) Pow(exp float64) Image      { return i.binary("Image.pow", ConstantImage(exp)) }
func (i Image) Multiply(other Image) Image { return i.binary("Image.multiply", other) }
func (i Image) MultiplyBy(v float64) Image { return i.binary("Image.multiply", ConstantImage(v)) }

// Clamp limits pixel values to [low, high].
func (i Image) Clamp(low, high float64) Image {
	return Image{Invoke("Image.clamp", map[string]*Node{
		"input": i.node,
		"low":   Constant(low),
		"high":  Constant(high),
	})}
}

// Collection is a remote image or feature collection.
type Collection struct {
	node *Node
}

// LoadImageCollection resolves an image collection by identifier.
func LoadImageCollection(id string) Collection {
	return Collection{Invoke("ImageCollection.load", map[string]*Node{"id": Constant(id)})}
}

func (c Collection) Node() *Node { return c.node }

// MapImages applies fn to every image in the collection remotely.
func (c Collection) MapImages(fn func(Image) Value) Collection {
	const param = "_MAPPING_FUNCTION_IMAGE"
	body := fn(ImageArg(param))
	return Collection{Invoke("Collection.map", map[string]*Node{
		"collection":    c.node,
		"baseAlgorithm": {Lambda: &Lambda{Params: []string{param}, Body: body.Node()}},
	})}
}

// Raw wraps an arbitrary node as a Value.
type Raw struct {
	N *Node
}

func (r Raw) Node() *Node { return r.N }
