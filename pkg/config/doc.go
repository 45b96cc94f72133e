// Package config loads simulation recipe files.
//
// A recipe file names the project, the recipe, its sky, the analysis grids
// and the scene. It is written in YAML or CUE:
//
//	project: office
//	target: build
//	recipe: daylight-coefficient
//	type: 0
//	sky:
//	  kind: sky-matrix
//	  weather: weather/boston.wea
//	  hours: [2916, 2917, 2918]
//	  density: 1
//	grids:
//	  - name: floor
//	    file: grids/floor.pts
//	  - name: desk
//	    points: [[1, 1, 0.75], [2, 1, 0.75, 0, 0, 1]]
//	grid_script: grids/ring.star
//	scene:
//	  materials: [model/materials.mat]
//	  geometry: [model/room.rad]
//	parameters:
//	  quality: 1
//	  values: {ab: 5}
//
// Loading checks the file in three passes: validator struct tags, the CUE
// #Recipe schema held by a SchemaRegistry, and rules spanning fields such as
// unique grid names. Relative paths resolve against the recipe folder.
//
// Grid scripts are Starlark. The script sees the project name and the math
// module, and must define a global grids list:
//
//	grids = [struct(name = "ring", points = [[2 * math.cos(a), 2 * math.sin(a), 0.8] for a in angles])]
//
// Build turns a loaded file into a recipe ready to be written:
//
//	f, err := config.NewLoader().Load(ctx, "recipe.yaml")
//	if err != nil {
//		return err
//	}
//	built, err := config.Build(ctx, f, config.BuildOptions{Recorder: metrics})
package config
